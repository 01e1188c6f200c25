package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// redactedFlags never have their values recorded.
var redactedFlags = map[string]bool{
	"private-key": true,
	"secret-key":  true,
}

func commandPath(c *cobra.Command) []string {
	var path []string
	if c.HasParent() {
		path = commandPath(c.Parent())
	}
	return append(path, c.Name())
}

// setSpanAttributes records the command path and every flag the user set as
// command.path and command.flag.<name>.
func setSpanAttributes(cmd *cobra.Command, span trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.StringSlice("command.path", commandPath(cmd)),
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		attrs = append(attrs, flagAttribute(cmd.Flags(), f))
	})
	span.SetAttributes(attrs...)
}

func flagAttribute(flags *pflag.FlagSet, f *pflag.Flag) attribute.KeyValue {
	k := "command.flag." + f.Name
	if redactedFlags[f.Name] {
		return attribute.String(k, "<redacted>")
	}
	switch f.Value.Type() {
	case "bool":
		if v, err := flags.GetBool(f.Name); err == nil {
			return attribute.Bool(k, v)
		}
	case "int":
		if v, err := flags.GetInt(f.Name); err == nil {
			return attribute.Int(k, v)
		}
	case "uint64":
		if v, err := flags.GetUint64(f.Name); err == nil {
			return attribute.Int64(k, int64(v))
		}
	case "stringSlice":
		if v, err := flags.GetStringSlice(f.Name); err == nil {
			return attribute.StringSlice(k, v)
		}
	}
	return attribute.String(k, f.Value.String())
}
