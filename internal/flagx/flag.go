// Package flagx reads a handful of command-line flags without claiming the
// whole argument list, so config loaders and cobra commands can share
// os.Args.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs keeps only the flags listed in allowed, together with their
// values. Both "-f value" and "-f=value" forms are recognised. A token that
// starts with "-" is never consumed as a value, and nothing after a bare
// "--" is looked at.
func FilterArgs(args []string, allowed []string) []string {
	keep := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		keep[f] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}

		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(arg, "-") {
			if _, ok := keep[name]; ok {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := keep[arg]; !ok {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// Lookup returns the value of a string flag known under several names, in
// single or double dash form. The last occurrence wins; "" means unset.
func Lookup(args []string, names ...string) string {
	var value string

	allowed := make([]string, 0, 2*len(names))
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, n := range names {
		fs.StringVar(&value, n, "", "")
		allowed = append(allowed, "-"+n, "--"+n)
	}
	_ = fs.Parse(FilterArgs(args, allowed))

	return value
}

// ConfigFile returns the JSON config path given by -c / --config.
func ConfigFile() string {
	return Lookup(os.Args[1:], "c", "config")
}

// EnvFile returns the dotenv path given by -env / --env-file. The file is
// handed to godotenv by the config loaders.
func EnvFile() string {
	return Lookup(os.Args[1:], "env", "env-file")
}
