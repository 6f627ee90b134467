package bridge

import "go-lunos/lunos"

type sensorDefinition struct {
	name  string
	class string
	unit  string
	get   func(st lunos.Status) interface{}
}
