package logAction

import "fmt"

type LoggerAction struct {
	Action            string
	ActionDescription string
	SubAction         string
}

// database sub actions
const (
	DB_CREATE = "CREATE"
	DB_READ   = "READ"
	DB_UPDATE = "UPDATE"
	DB_DELETE = "DELETE"
)

func INBOUND(desc string) LoggerAction {
	return LoggerAction{Action: "[INBOUND]", ActionDescription: desc}
}

func OUTBOUND(desc string) LoggerAction {
	return LoggerAction{Action: "[OUTBOUND]", ActionDescription: desc}
}

func EXCEPTION(desc string) LoggerAction {
	return LoggerAction{Action: "[EXCEPTION]", ActionDescription: desc}
}

func SYSTEM(desc string) LoggerAction {
	return LoggerAction{Action: "[SYSTEM]", ActionDescription: desc}
}

func BUSINESS(desc string) LoggerAction {
	return LoggerAction{Action: "[BUSINESS]", ActionDescription: desc}
}

func PUBLISH(topic, desc string) LoggerAction {
	return LoggerAction{Action: "[PUBLISH]", ActionDescription: desc, SubAction: topic}
}

func DB_REQUEST(op, desc string) LoggerAction {
	return LoggerAction{Action: "[DB_REQUEST]", ActionDescription: desc, SubAction: op}
}

func DB_RESPONSE(op, desc string) LoggerAction {
	return LoggerAction{Action: "[DB_RESPONSE]", ActionDescription: desc, SubAction: op}
}

func (a LoggerAction) String() string {
	if a.SubAction == "" {
		return fmt.Sprintf("%s %s", a.Action, a.ActionDescription)
	}
	return fmt.Sprintf("%s(%s) %s", a.Action, a.SubAction, a.ActionDescription)
}
