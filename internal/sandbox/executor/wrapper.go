package executor

import (
	"strconv"
	"strings"

	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox"
	"github.com/GriffinCanCode/AgentOS/scriptbox/internal/sandbox/args"
)

const (
	// ModuleDataName is the fixed name a binary module is transferred under
	ModuleDataName = "__rb_module_data"
	// ModuleParam is the identifier the compiled module is bound to
	ModuleParam = "__rb_module"

	moduleBytesParam = "__rb_module_bytes"
	resultParam      = "__rb_result"
)

// reservedNames may not be used by caller arguments
var reservedNames = map[string]bool{
	ModuleParam:      true,
	moduleBytesParam: true,
	resultParam:      true,
}

// wrapperGlobals are the globals the wrapper calls. An argument of the same
// name would shadow them inside the wrapper.
var wrapperGlobals = map[string]bool{
	"JSON": true,
}

// moduleGlobals are additionally called when a module is present
var moduleGlobals = map[string]bool{
	"sandbox":     true,
	"WebAssembly": true,
}

// BuildWrapper returns an anonymous function expression that declares list
// in order and invokes entry with them. With a module the compiled module is
// passed as an extra final parameter and the result is a promise.
func BuildWrapper(entry string, list []args.Argument, withModule bool) string {
	var sb strings.Builder

	sb.WriteString("(function() {\n")
	names := make([]string, 0, len(list)+1)
	for _, a := range list {
		sb.WriteString("  ")
		sb.WriteString(args.Declare(a))
		sb.WriteString("\n")
		names = append(names, args.NameOf(a))
	}

	if !withModule {
		sb.WriteString("  return JSON.stringify(")
		sb.WriteString(entry)
		sb.WriteString("(")
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("));\n")
		sb.WriteString("})()")
		return sb.String()
	}

	names = append(names, ModuleParam)
	sb.WriteString("  return ")
	sb.WriteString(sandbox.ConsumeNamedDataFunc)
	sb.WriteString("(")
	sb.WriteString(strconv.Quote(ModuleDataName))
	sb.WriteString(")\n")
	sb.WriteString("    .then(function(" + moduleBytesParam + ") { return WebAssembly.compile(" + moduleBytesParam + "); })\n")
	sb.WriteString("    .then(function(" + ModuleParam + ") { return " + entry + "(" + strings.Join(names, ", ") + "); })\n")
	sb.WriteString("    .then(function(" + resultParam + ") { return JSON.stringify(" + resultParam + "); });\n")
	sb.WriteString("})()")
	return sb.String()
}

// BuildScript joins the caller script and the wrapper into the submitted source
func BuildScript(script, wrapper string) string {
	return script + "\n;\n" + wrapper
}
