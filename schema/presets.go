// Copyright © 2024 Meroxa, Inc.
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

package schema

// Presets are the built-in schemas for the message formats produced by the
// bundled generator, selected by name in the configuration.
var Presets = map[string]Schema{
	"solar_panel": {
		Columns: []Column{
			{Name: "panel_id", Path: "panel_id", Type: TypeString},
			{Name: "location_id", Path: "location.id", Type: TypeString},
			{Name: "location_name", Path: "location.name", Type: TypeString, Nullable: true},
			{Name: "latitude", Path: "location.latitude", Type: TypeFloat, Nullable: true},
			{Name: "longitude", Path: "location.longitude", Type: TypeFloat, Nullable: true},
			{Name: "temperature", Path: "temperature", Type: TypeFloat},
			{Name: "power_output", Path: "power_output", Type: TypeFloat},
			{Name: "unit_power", Path: "unit_power", Type: TypeString, Nullable: true},
			{Name: "irradiance", Path: "irradiance", Type: TypeFloat, Nullable: true},
			{Name: "online", Path: "online", Type: TypeBool, Nullable: true},
		},
		Time: TimeColumn{Name: "timestamp", Path: "timestamp", Unit: UnitNanos},
		Key:  []string{"panel_id", "timestamp"},
	},
}
