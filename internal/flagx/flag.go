// Package flagx lets several configuration stages read their own flags out of
// one command line without tripping over each other's definitions.
package flagx

import (
	"flag"
	"io"
	"os"
	"strings"
)

// FilterArgs keeps only the flags named in allowedFlags, together with their
// values. Both "-f value" and "-f=value" forms are recognised; a following
// token that starts with "-" is never consumed as a value.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name, _, _ := strings.Cut(arg, "=")
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// JsonConfigFlags returns the JSON config path given with -c or -config, or
// "" when neither is present. The last occurrence wins.
func JsonConfigFlags() string {
	return lookupString(os.Args[1:], "c", "config")
}

// EnvFileFlags returns the dotenv file path given with -env, defaulting to
// ".env" in the working directory.
func EnvFileFlags() string {
	if p := lookupString(os.Args[1:], "env"); p != "" {
		return p
	}
	return ".env"
}

func lookupString(args []string, names ...string) string {
	allowed := make([]string, 0, len(names)*2)
	for _, n := range names {
		allowed = append(allowed, "-"+n, "--"+n)
	}

	var value string
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	for _, n := range names {
		fs.StringVar(&value, n, "", n)
	}
	_ = fs.Parse(FilterArgs(args, allowed))
	return value
}
