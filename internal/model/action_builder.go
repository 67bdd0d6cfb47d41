package model

// ActionSpec is the plain-data authoring form of Action, used by Builder
// before Finalize assigns arena indices to nested content.
type ActionSpec struct {
	Kind ActionKind

	Location, Expr string
	Source         string
	Label, Level   string
	EventName      string
	Send           SendSpec
	SendID         string
	SendIDExpr     string
	Branches       []IfBranchSpec
	Array          string
	Item           string
	Index          string
	Body           []ActionSpec
}

type IfBranchSpec struct {
	Cond    string
	Actions []ActionSpec
}

func Assign(location, expr string) ActionSpec {
	return ActionSpec{Kind: ActionAssign, Location: location, Expr: expr}
}

func Script(source string) ActionSpec {
	return ActionSpec{Kind: ActionScript, Source: source}
}

func Log(label, level, expr string) ActionSpec {
	return ActionSpec{Kind: ActionLog, Label: label, Level: level, Expr: expr}
}

func Raise(eventName string) ActionSpec {
	return ActionSpec{Kind: ActionRaise, EventName: eventName}
}

func Send(spec SendSpec) ActionSpec {
	return ActionSpec{Kind: ActionSend, Send: spec}
}

func Cancel(sendID, sendIDExpr string) ActionSpec {
	return ActionSpec{Kind: ActionCancel, SendID: sendID, SendIDExpr: sendIDExpr}
}

func If(branches ...IfBranchSpec) ActionSpec {
	return ActionSpec{Kind: ActionIf, Branches: branches}
}

func Branch(cond string, actions ...ActionSpec) IfBranchSpec {
	return IfBranchSpec{Cond: cond, Actions: actions}
}

// Else is sugar for a final, condition-less Branch.
func Else(actions ...ActionSpec) IfBranchSpec {
	return IfBranchSpec{Cond: "", Actions: actions}
}

func Foreach(array, item, index string, body ...ActionSpec) ActionSpec {
	return ActionSpec{Kind: ActionForeach, Array: array, Item: item, Index: index, Body: body}
}
