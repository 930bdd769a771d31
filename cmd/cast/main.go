package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/takeiteasy/cast"
	"github.com/takeiteasy/cast/cmd/internal/config"
	"github.com/takeiteasy/cast/parse"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func printUsage() {
	fmt.Println("cast: C AST parser + preprocessor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cast [flags] file...")
	fmt.Println()
	fmt.Println("A file named - reads from stdin.")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// parseSize understands 50, 50K, 10M, 1G and 100B suffixes.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 'b', 'B':
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = printUsage

	var includes, sysIncludes, defines, undefines stringList
	flag.Var(&includes, "I", "Add a user include search path.")
	flag.Var(&sysIncludes, "isystem", "Add a system include search path.")
	flag.Var(&defines, "D", "Define a macro: name[=val] (val defaults to 1).")
	flag.Var(&undefines, "U", "Undefine a macro.")

	printAST := flag.Bool("a", false, "Print the AST as S-expressions.")
	flag.BoolVar(printAST, "ast", *printAST, "Alias for -a.")
	printToks := flag.Bool("P", false, "Print the token stream.")
	flag.BoolVar(printToks, "print-tokens", *printToks, "Alias for -P.")
	preprocessOnly := flag.Bool("E", false, "Print preprocessed source.")
	flag.BoolVar(preprocessOnly, "preprocess", *preprocessOnly, "Alias for -E.")
	outputJSON := flag.Bool("j", false, "Emit a JSON declaration summary.")
	flag.BoolVar(outputJSON, "json", *outputJSON, "Alias for -j.")
	noPreprocess := flag.Bool("X", false, "Skip the preprocessor.")
	flag.BoolVar(noPreprocess, "no-preprocess", *noPreprocess, "Alias for -X.")

	outputPath := flag.String("o", "-", "Write output to a file, - for stdout.")
	maxErrors := flag.Int("max-errors", 0, "Bound on collected errors (default 20).")
	werror := flag.Bool("Werror", false, "Treat warnings as errors.")
	embedLimit := flag.String("embed-limit", "", "Soft size cap for #embed, e.g. 50K, 10M.")
	embedHard := flag.Bool("embed-hard-limit", false, "Make the embed cap a hard error.")
	noStdInc := flag.Bool("no-std-headers", false, "Resolve well-known headers from system paths instead of the embedded set.")
	cfgPath := flag.String("config", "", "Load options from a YAML config file.")

	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		return 1
	}

	s := cast.New()
	defer s.Close()

	if *cfgPath != "" {
		cfg, err := config.FromFile(*cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, p := range cfg.IncludePaths {
			s.AddIncludePath(p)
		}
		for _, p := range cfg.SystemIncludePaths {
			s.AddSystemIncludePath(p)
		}
		for name, val := range cfg.Defines {
			s.Define(name, val)
		}
		for _, name := range cfg.Undefines {
			s.Undef(name)
		}
		if cfg.MaxErrors > 0 {
			s.SetMaxErrors(cfg.MaxErrors)
		}
		if cfg.WarningsAsErrors {
			s.WarningsAsErrors(true)
		}
		if cfg.EmbedLimit != "" {
			n, err := parseSize(cfg.EmbedLimit)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			s.SetEmbedLimit(n)
		}
		if cfg.EmbedHardLimit {
			s.SetEmbedHardError(true)
		}
		if cfg.NoStdHeaders {
			s.UseStdHeaders(false)
		}
	}

	for _, p := range includes {
		s.AddIncludePath(p)
	}
	for _, p := range sysIncludes {
		s.AddSystemIncludePath(p)
	}
	for _, d := range defines {
		name, val := d, ""
		if i := strings.IndexByte(d, '='); i >= 0 {
			name, val = d[:i], d[i+1:]
		}
		s.Define(name, val)
	}
	for _, name := range undefines {
		s.Undef(name)
	}
	if *maxErrors > 0 {
		s.SetMaxErrors(*maxErrors)
	}
	if *werror {
		s.WarningsAsErrors(true)
	}
	if *embedLimit != "" {
		n, err := parseSize(*embedLimit)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		s.SetEmbedLimit(n)
	}
	if *embedHard {
		s.SetEmbedHardError(true)
	}
	if *noStdInc {
		s.UseStdHeaders(false)
	}

	var out io.WriteCloser = os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open output file: %s\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	var progs [][]*parse.Obj
	for _, path := range flag.Args() {
		if *noPreprocess {
			tok, err := s.Tokenize(path)
			if err != nil {
				cast.ReportError(os.Stderr, err)
				return 1
			}
			if *printToks {
				cast.PrintTokens(out, tok)
				continue
			}
			prog, err := s.ParseTokens(tok)
			if err != nil {
				cast.ReportError(os.Stderr, err)
				return 1
			}
			progs = append(progs, prog)
			continue
		}

		tok, err := s.Preprocess(path)
		if err != nil {
			cast.ReportError(os.Stderr, err)
			return 1
		}
		if *preprocessOnly {
			cast.OutputPreprocessed(out, tok)
			continue
		}
		if *printToks {
			cast.PrintTokens(out, tok)
			continue
		}

		prog, err := s.ParseTokens(tok)
		if err != nil {
			cast.ReportError(os.Stderr, err)
			return 1
		}
		progs = append(progs, prog)
	}

	if len(progs) > 0 {
		merged, err := s.Link(progs...)
		if err != nil {
			cast.ReportError(os.Stderr, err)
			return 1
		}
		switch {
		case *outputJSON:
			if err := cast.OutputJSON(out, merged); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		case *printAST:
			cast.PrintAST(out, merged)
		}
	}

	if s.HasErrors() {
		s.PrintAllErrors(os.Stderr)
		return 1
	}
	return 0
}
