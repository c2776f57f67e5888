package worker

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strings"
)

// ScriptTreeKind is the one structured payload kind the external command
// encoding names. Its wire command is
// "scriptTree <payloadFileID> <moduleSearchDir> <class1> [<class2>...]" --
// still space-separated tokens, for compatibility with that encoding --
// but is parsed into ScriptTreeCommand immediately at the call site
// instead of threaded through as unstructured tokens.
const ScriptTreeKind PayloadKind = "scriptTree"

const scriptTreeMarker = "scriptTree "

// ScriptTreeCommand is the parsed form of a scriptTree command string.
type ScriptTreeCommand struct {
	PayloadFileID   string
	ModuleSearchDir string
	// Classes holds the class tokens of the wire command. They are kept
	// through parsing and Encode, but reconstruction does not consult
	// them: the factory is chosen by the type name recorded in the payload
	// file's envelope, which must be registered via RegisterScriptType.
	Classes []string
}

// IsScriptTreeCommand reports whether command carries the scriptTree
// marker.
func IsScriptTreeCommand(command string) bool {
	return strings.HasPrefix(command, scriptTreeMarker)
}

// ParseScriptTreeCommand parses a scriptTree command string.
func ParseScriptTreeCommand(command string) (*ScriptTreeCommand, error) {
	tokens := strings.Fields(command)
	if len(tokens) < 3 || tokens[0] != "scriptTree" {
		return nil, fmt.Errorf("worker: malformed scriptTree command %q", command)
	}
	return &ScriptTreeCommand{
		PayloadFileID:   tokens[1],
		ModuleSearchDir: tokens[2],
		Classes:         tokens[3:],
	}, nil
}

// Encode renders c back to the wire command string.
func (c *ScriptTreeCommand) Encode() string {
	tokens := append([]string{"scriptTree", c.PayloadFileID, c.ModuleSearchDir}, c.Classes...)
	return strings.Join(tokens, " ")
}

// scriptTreeEnvelope is the gob-encoded content of a scriptTree payload
// file: a declared type name plus that type's own gob-encoded value.
type scriptTreeEnvelope struct {
	TypeName string
	Data     []byte
}

// ScriptFactory reconstructs one declared Go type's Payload from its
// gob-encoded bytes.
type ScriptFactory func(data []byte) (Payload, error)

var scriptTypes = map[string]ScriptFactory{}

// RegisterScriptType binds a declared type name to its factory. A
// payload author calls this from an init() alongside a gob.Register of
// the concrete type it encodes.
func RegisterScriptType(name string, factory ScriptFactory) {
	if _, exists := scriptTypes[name]; exists {
		panic(fmt.Sprintf("worker: script type %q already registered", name))
	}
	scriptTypes[name] = factory
}

// UnknownScriptTypeError is returned when a scriptTree envelope names a
// type with no registered factory.
type UnknownScriptTypeError struct {
	TypeName string
}

func (e *UnknownScriptTypeError) Error() string {
	return fmt.Sprintf("worker: unknown script type %q", e.TypeName)
}

// EncodeScriptTreePayload gob-encodes value under typeName, for use by a
// payload author writing a payload file (the inverse of the constructor
// registered below).
func EncodeScriptTreePayload(typeName string, value any) ([]byte, error) {
	var inner bytes.Buffer
	if err := gob.NewEncoder(&inner).Encode(value); err != nil {
		return nil, fmt.Errorf("worker: encode %s: %w", typeName, err)
	}
	var outer bytes.Buffer
	env := scriptTreeEnvelope{TypeName: typeName, Data: inner.Bytes()}
	if err := gob.NewEncoder(&outer).Encode(env); err != nil {
		return nil, fmt.Errorf("worker: encode envelope for %s: %w", typeName, err)
	}
	return outer.Bytes(), nil
}

func init() {
	RegisterPayloadKind(ScriptTreeKind, func(blob []byte, loader *Loader) (Payload, error) {
		var env scriptTreeEnvelope
		if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&env); err != nil {
			return nil, fmt.Errorf("worker: decode scriptTree envelope: %w", err)
		}
		factory, ok := scriptTypes[env.TypeName]
		if !ok {
			return nil, &UnknownScriptTypeError{TypeName: env.TypeName}
		}
		return factory(env.Data)
	})
}
