package engine

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// installConsole routes console.* to the logger.
func installConsole(vm *goja.Runtime, log *zap.Logger) error {
	log = log.Named("console")
	levels := map[string]func(string, ...zap.Field){
		"log":   log.Info,
		"info":  log.Info,
		"debug": log.Debug,
		"warn":  log.Warn,
		"error": log.Error,
	}

	console := vm.NewObject()
	for name, write := range levels {
		write := write
		err := console.Set(name, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			write(strings.Join(parts, " "))
			return goja.Undefined()
		})
		if err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}
