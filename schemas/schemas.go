// Package schemas embeds the intervention wire schema so the server can
// validate payloads without shipping files next to the binary.
package schemas

import (
	"bytes"
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed intervene.schema.json
var interveneJSON []byte

// Intervene compiles the intervention payload schema.
func Intervene() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("intervene.schema.json", bytes.NewReader(interveneJSON)); err != nil {
		return nil, err
	}
	return c.Compile("intervene.schema.json")
}
