/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func names(samples []Sample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Name)
	}

	return out
}

func TestFilterSamples(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		want     []string
		exported int
	}{
		{
			name:     "no filter",
			filter:   Filter{},
			want:     []string{"Lamp", "Ceiling Dimmer", "Climate", "Heating"},
			exported: 4,
		},
		{
			name:     "room",
			filter:   Filter{ExcludeRooms: []string{"Kitchen"}},
			want:     []string{"Lamp", "Climate", "Heating"},
			exported: 3,
		},
		{
			name:     "type applies to sub-controls",
			filter:   Filter{ExcludeTypes: []string{"Switch"}},
			want:     []string{"Ceiling Dimmer", "Climate"},
			exported: 2,
		},
		{
			name:     "name glob",
			filter:   Filter{ExcludeNames: []string{"Ceiling*"}},
			want:     []string{"Lamp", "Climate", "Heating"},
			exported: 3,
		},
		{
			name:     "excluded parent hides children",
			filter:   Filter{ExcludeNames: []string{"Clim?te"}},
			want:     []string{"Lamp", "Ceiling Dimmer"},
			exported: 2,
		},
		{
			name:     "bad pattern matches nothing",
			filter:   Filter{ExcludeNames: []string{"[Lamp"}},
			want:     []string{"Lamp", "Ceiling Dimmer", "Climate", "Heating"},
			exported: 4,
		},
		{
			name:     "text values",
			filter:   Filter{IncludeTextValues: true},
			want:     []string{"Lamp", "Ceiling Dimmer", "Door Sign", "Climate", "Heating"},
			exported: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, exported, duplicates := tt.filter.Samples(homeSnapshot())
			assert.Equal(t, tt.want, names(samples))
			assert.Equal(t, tt.exported, exported)
			assert.Zero(t, duplicates)
		})
	}
}

func TestFilterSkipsFieldsWithoutValues(t *testing.T) {
	snap := homeSnapshot()
	delete(snap.Values, "w1")

	samples, exported, _ := Filter{}.Samples(snap)
	assert.NotContains(t, names(samples), "Lamp")
	assert.Equal(t, 3, exported)
}

func TestFilterNilSnapshot(t *testing.T) {
	samples, exported, duplicates := Filter{}.Samples(nil)
	assert.Nil(t, samples)
	assert.Zero(t, exported)
	assert.Zero(t, duplicates)
}
