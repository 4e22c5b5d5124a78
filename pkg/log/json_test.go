// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"encoding/json"
	"testing"
)

func TestLevelText(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Level
	}{
		{in: `"warning"`, want: Warning},
		{in: `"info"`, want: Info},
		{in: `"debug"`, want: Debug},
		{in: `"0"`, want: Warning},
		{in: `"2"`, want: Debug},
	} {
		var got Level
		if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Unmarshal(%s) got %v want %v", tc.in, got, tc.want)
		}
	}

	var l Level
	if err := json.Unmarshal([]byte(`"verbose"`), &l); err == nil {
		t.Errorf("Unmarshal of unknown level succeeded with %v", l)
	}
	if _, err := json.Marshal(Level(7)); err == nil {
		t.Errorf("Marshal of invalid level succeeded")
	}
}
