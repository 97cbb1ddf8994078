package runtime

import (
	"fmt"
	"strings"
)

// Family selects the branch dispatch policy applied after a node succeeds.
type Family int

const (
	FamilySequential Family = iota
	FamilyBoolean
	FamilySwitch
	FamilyTryCatch
	FamilyFilter
	FamilyApproval
	FamilyForEach
	FamilyRepeat
	FamilyWhile
	FamilyParallelForEach
)

var familyNames = map[Family]string{
	FamilySequential:      "sequential",
	FamilyBoolean:         "boolean",
	FamilySwitch:          "switch",
	FamilyTryCatch:        "try_catch",
	FamilyFilter:          "filter",
	FamilyApproval:        "approval",
	FamilyForEach:         "foreach",
	FamilyRepeat:          "repeat",
	FamilyWhile:           "while",
	FamilyParallelForEach: "parallel_foreach",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

var familyByType = map[string]Family{
	"condition_if":              FamilyBoolean,
	"condition_type_check":      FamilyBoolean,
	"condition_is_empty":        FamilyBoolean,
	"condition_date_compare":    FamilyBoolean,
	"condition_array_contains":  FamilyBoolean,
	"condition_switch":          FamilySwitch,
	"condition_try_catch":       FamilyTryCatch,
	"condition_filter":          FamilyFilter,
	"condition_manual_approval": FamilyApproval,
	"loop_foreach":              FamilyForEach,
	"loop_repeat":               FamilyRepeat,
	"loop_while":                FamilyWhile,
	"loop_parallel_foreach":     FamilyParallelForEach,
}

// FamilyOf maps a node type to its dispatch family. Unlisted types,
// including custom nodes, are sequential.
func FamilyOf(nodeType string) Family {
	if f, ok := familyByType[nodeType]; ok {
		return f
	}
	return FamilySequential
}

// Port is the closed set of output ports an edge can leave a node from.
type Port int

const (
	// PortAny is used for every edge of a sequential node; the handle is ignored.
	PortAny Port = iota
	PortTrue
	PortFalse
	PortCase
	PortDefault
	PortTry
	PortCatch
	PortMatch
	PortNoMatch
	PortLoop
	PortDone
)

var portNames = map[Port]string{
	PortAny:     "",
	PortTrue:    "true",
	PortFalse:   "false",
	PortCase:    "case",
	PortDefault: "default",
	PortTry:     "try",
	PortCatch:   "catch",
	PortMatch:   "match",
	PortNoMatch: "nomatch",
	PortLoop:    "loop",
	PortDone:    "done",
}

func (p Port) String() string {
	return portNames[p]
}

var familyPorts = map[Family][]Port{
	FamilyBoolean:         {PortTrue, PortFalse},
	FamilyApproval:        {PortTrue, PortFalse},
	FamilyTryCatch:        {PortTry, PortCatch},
	FamilyFilter:          {PortMatch, PortNoMatch},
	FamilyForEach:         {PortLoop, PortDone},
	FamilyRepeat:          {PortLoop, PortDone},
	FamilyWhile:           {PortLoop, PortDone},
	FamilyParallelForEach: {PortLoop, PortDone},
}

// resolvePort maps an edge's source handle onto the port set of the source
// node's family. Switch nodes accept any non-empty handle as a case value.
func resolvePort(f Family, handle string) (Port, error) {
	switch f {
	case FamilySequential:
		return PortAny, nil
	case FamilySwitch:
		if handle == "" {
			return 0, fmt.Errorf("switch edges need a case value or %q", PortDefault)
		}
		if handle == PortDefault.String() {
			return PortDefault, nil
		}
		return PortCase, nil
	}

	allowed := familyPorts[f]
	names := make([]string, 0, len(allowed))
	for _, p := range allowed {
		if p.String() == handle {
			return p, nil
		}
		names = append(names, fmt.Sprintf("%q", p.String()))
	}
	return 0, fmt.Errorf("handle %q is not one of %s", handle, strings.Join(names, ", "))
}
