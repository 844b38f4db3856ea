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

package flatfile

import (
	"reflect"
	"testing"
)

func TestQualifiers(t *testing.T) {
	var q Qualifiers
	if _, ok := q.First("gene"); ok {
		t.Fatal("First on empty qualifiers succeeded")
	}

	q.Add("gene", "lacZ")
	q.Add("note", "one")
	q.Add("note", "two")
	q.Set("gene", "lacY")
	q.Set("pseudo")

	if got, want := q.Keys(), []string{"gene", "note", "pseudo"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong keys: got %v, want %v", got, want)
	}
	if got, want := q.Len(), 3; got != want {
		t.Errorf("Wrong length: got %d, want %d", got, want)
	}
	if got, want := q.Get("note"), []string{"one", "two"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Wrong notes: got %v, want %v", got, want)
	}
	if got, ok := q.First("gene"); !ok || got != "lacY" {
		t.Errorf("Wrong gene: got %q, %v", got, ok)
	}
	if _, ok := q.First("pseudo"); ok {
		t.Error("First returned a value for a key without values")
	}
}
