// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package block

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Option is one alternative of a variant block.
type Option struct {
	ID      string
	Enabled bool
}

// Options is the ordered set of alternatives of a variant block.  It is
// encoded as a JSON object from option id to enabled flag; declaration order
// is preserved in both directions.
type Options []Option

// Enabled returns the ids of the enabled options in declaration order.
func (o Options) Enabled() []string {
	var ids []string
	for _, option := range o {
		if option.Enabled {
			ids = append(ids, option.ID)
		}
	}
	return ids
}

// MarshalJSON implements json.Marshaler.
func (o Options) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, option := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(option.ID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%t", option.Enabled)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Options) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return fmt.Errorf("reading options: %v", err)
	} else if tok != json.Delim('{') {
		return fmt.Errorf("options: expected object, got %v", tok)
	}

	options := Options{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading option id: %v", err)
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("options: expected string key, got %v", tok)
		}
		var enabled bool
		if err := dec.Decode(&enabled); err != nil {
			return fmt.Errorf("reading option %q: %v", id, err)
		}
		options = append(options, Option{id, enabled})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading options: %v", err)
	}
	*o = options
	return nil
}
