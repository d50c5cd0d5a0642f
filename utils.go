package agentdesk

import (
	"encoding/json"
	"fmt"
	"strings"
)

const RequestIDLength = 24

const ackSuccess = "success"

func JsonPrint(tag string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%s: error marshaling: %v\n", tag, err)
		return
	}
	fmt.Printf("%s: %s\n", tag, string(b))
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// IsRequestID reports whether id has the 24 hex character shape used for
// request and output identifiers.
func IsRequestID(id string) bool {
	if len(id) != RequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isHex(id[i]) {
			return false
		}
	}
	return true
}

// NormalizeRequestID lowercases a well formed id. ok is false otherwise.
func NormalizeRequestID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if !IsRequestID(id) {
		return "", false
	}
	return strings.ToLower(id), true
}

func (a DispatchAck) Accepted() bool {
	return a.Status == ackSuccess
}

// ParseAgentType matches the exact display names of the agent types.
func ParseAgentType(s string) (AgentType, bool) {
	for _, t := range AgentTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// RequiresCountry reports whether requests of this type are scoped to a country.
func (t AgentType) RequiresCountry() bool {
	return t == AgentTypeCorporateRegistry || t == AgentTypeWebResearchMedia
}
