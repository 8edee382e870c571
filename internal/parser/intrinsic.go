package parser

import "strings"

// Kind identifies an intrinsic function. The set is closed; consumers switch
// over every Kind and panic on anything else.
type Kind int

const (
	KindRef Kind = iota
	KindGetAtt
	KindSub
	KindJoin
	KindSelect
	KindGetAZs
	KindIf
	KindEquals
	KindAnd
	KindOr
	KindNot
	KindBase64
	KindFindInMap
	KindCidr
	KindImportValue
	KindSplit
	KindCondition

	numKinds
)

var kindNames = [numKinds]string{
	KindRef:         "Ref",
	KindGetAtt:      "Fn::GetAtt",
	KindSub:         "Fn::Sub",
	KindJoin:        "Fn::Join",
	KindSelect:      "Fn::Select",
	KindGetAZs:      "Fn::GetAZs",
	KindIf:          "Fn::If",
	KindEquals:      "Fn::Equals",
	KindAnd:         "Fn::And",
	KindOr:          "Fn::Or",
	KindNot:         "Fn::Not",
	KindBase64:      "Fn::Base64",
	KindFindInMap:   "Fn::FindInMap",
	KindCidr:        "Fn::Cidr",
	KindImportValue: "Fn::ImportValue",
	KindSplit:       "Fn::Split",
	KindCondition:   "Condition",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "Unknown"
	}
	return kindNames[k]
}

// Tag returns the short YAML tag form, e.g. "!GetAtt".
func (k Kind) Tag() string {
	return "!" + strings.TrimPrefix(k.String(), "Fn::")
}

// Logical reports whether the kind is a condition function whose arguments
// may contain {"Condition": name}.
func (k Kind) Logical() bool {
	return k == KindAnd || k == KindOr || k == KindNot
}

func Kinds() []Kind {
	ks := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		ks = append(ks, k)
	}
	return ks
}

// LookupKind finds a kind by its long name ("Fn::GetAtt", "Ref").
func LookupKind(name string) (Kind, bool) {
	for k := Kind(0); k < numKinds; k++ {
		if kindNames[k] == name {
			return k, true
		}
	}
	return 0, false
}

// LookupTag finds a kind by its YAML tag ("!GetAtt").
func LookupTag(tag string) (Kind, bool) {
	for k := Kind(0); k < numKinds; k++ {
		if k.Tag() == tag {
			return k, true
		}
	}
	return 0, false
}

// FunctionNames lists every long function name, for suggestions.
func FunctionNames() []string {
	names := make([]string, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		names = append(names, kindNames[k])
	}
	return names
}

// externalFunctions are evaluated by CloudFormation macros and language
// extensions before the template is processed. They are kept as plain
// single-key maps and never type checked.
var externalFunctions = []string{"Fn::Transform", "Fn::Length", "Fn::ToJsonString"}

// IsExternalFunction reports whether key names a function handled by a
// transform rather than by the template engine.
func IsExternalFunction(key string) bool {
	for _, f := range externalFunctions {
		if f == key {
			return true
		}
	}
	return false
}

// External returns the function name when v is a single-key map invoking an
// external function.
func External(v Value) (string, bool) {
	m, ok := v.(*Map)
	if !ok || len(m.Entries) != 1 || !IsExternalFunction(m.Entries[0].Key) {
		return "", false
	}
	return m.Entries[0].Key, true
}

func externalTag(tag string) (string, bool) {
	name := "Fn::" + strings.TrimPrefix(tag, "!")
	if strings.HasPrefix(tag, "!") && IsExternalFunction(name) {
		return name, true
	}
	return "", false
}
