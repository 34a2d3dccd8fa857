// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-relay
//
// go-relay is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-relay is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-relay.  If not, see <https://www.gnu.org/licenses/>.

package codecs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// NewFormattedJSONEncoder returns a json encoder configured for
// pretty-printed output (human-readable)
func NewFormattedJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	enc.SetEscapeHTML(false)
	return enc
}

// LoadObjectFromFile implements the common pattern for loading an instance
// of an object from a json file.
func LoadObjectFromFile(filename string, object interface{}) (err error) {
	f, err := os.Open(filename)
	if err != nil {
		return
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	err = dec.Decode(object)
	return
}

// SaveObjectToFile implements the common pattern for saving an object to a file as json
func SaveObjectToFile(filename string, object interface{}, prettyFormat bool) error {
	var buf bytes.Buffer
	var enc *json.Encoder
	if prettyFormat {
		enc = NewFormattedJSONEncoder(&buf)
	} else {
		enc = json.NewEncoder(&buf)
	}
	if err := enc.Encode(object); err != nil {
		return err
	}
	return writeFileAtomic(filename, buf.Bytes())
}

// SaveNonDefaultValuesToFile saves an object to a file as json, keeping only the
// top-level fields whose encoded value differs from the one in defaultObject.
// Fields named in ignore are always kept.
func SaveNonDefaultValuesToFile(filename string, object, defaultObject interface{}, ignore []string) error {
	values, err := encodedFields(object)
	if err != nil {
		return err
	}
	defaults, err := encodedFields(defaultObject)
	if err != nil {
		return err
	}

	for name := range values {
		if slices.Contains(ignore, name) {
			continue
		}
		if isDefaultValue(name, values, defaults) {
			delete(values, name)
		}
	}

	// maps are encoded with sorted keys
	out, err := json.MarshalIndent(values, "", "\t")
	if err != nil {
		return err
	}
	return writeFileAtomic(filename, append(out, '\n'))
}

func encodedFields(object interface{}) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(object)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("error processing serialized object - expected a json object: %w", err)
	}
	return fields, nil
}

func isDefaultValue(name string, values, defaults map[string]json.RawMessage) bool {
	val, hasVal := values[name]
	def, hasDef := defaults[name]
	if hasVal != hasDef {
		return false
	}
	return bytes.Equal(val, def)
}

func writeFileAtomic(filename string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filename)
}
