package bridge

import "go-lunos/lunos"

// Airflow sensors registered next to each fan entity. Values track the
// last commanded speed, scaled by the configured fan count.
var sensorDefinitions = [...]*sensorDefinition{
	{
		name: "Airflow",
		unit: "cfm",
		get:  func(st lunos.Status) interface{} { return st.CFM },
	},
	{
		name: "Airflow Metric",
		unit: "m³/h",
		get:  func(st lunos.Status) interface{} { return st.CMH },
	},
	{
		name:  "Power",
		class: "power",
		unit:  "W",
		get:   func(st lunos.Status) interface{} { return st.Watts },
	},
	{
		name:  "Sound Level",
		class: "sound_pressure",
		unit:  "dB",
		get:   func(st lunos.Status) interface{} { return st.DB },
	},
}
