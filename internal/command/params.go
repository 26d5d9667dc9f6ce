package command

import "fmt"

// Command types accepted by the dispatch queue. Each type has its own
// parameter shape, validated before the command is persisted.
const (
	TypeReboot         = "reboot"
	TypeLock           = "lock"
	TypeUnlock         = "unlock"
	TypeSetTemperature = "set_temperature"
	TypeDispense       = "dispense"
	TypeSyncInventory  = "sync_inventory"
)

// ValidationError marks a rejected command so callers can distinguish bad
// input from infrastructure failures.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ValidateParameters checks the parameter record against the command
// type's expected shape. Unknown types are rejected so a new command type
// must be added here before it can be dispatched.
func ValidateParameters(cmdType string, params map[string]any) error {
	switch cmdType {
	case TypeReboot, TypeLock, TypeUnlock, TypeSyncInventory:
		return nil
	case TypeSetTemperature:
		target, ok := numericParam(params, "target")
		if !ok {
			return invalid("command %s requires a numeric %q parameter", cmdType, "target")
		}
		if target < -40 || target > 80 {
			return invalid("command %s target %.1f out of range", cmdType, target)
		}
		return nil
	case TypeDispense:
		slot, ok := numericParam(params, "slot")
		if !ok {
			return invalid("command %s requires a numeric %q parameter", cmdType, "slot")
		}
		if slot < 0 {
			return invalid("command %s slot must not be negative", cmdType)
		}
		return nil
	default:
		return invalid("unknown command type %q", cmdType)
	}
}

func numericParam(params map[string]any, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
