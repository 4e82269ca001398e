package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/daimatz/setip/pkg/classfile"
	"github.com/daimatz/setip/pkg/config"
	"github.com/daimatz/setip/pkg/hierarchy"
	"github.com/daimatz/setip/pkg/setip"
)

var log = commonlog.GetLogger("setip.cmd")

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: setip <command> [flags]

Commands:
  methods  -class F                                   list methods
  lines    -class F -method M -desc D [-plan P] [-all] list lines execution can move to
  goto     -class F -method M -desc D -line N -out G   rewrite the method to start at a line
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "methods":
		err = runMethods(cfg, os.Args[2:])
	case "lines":
		err = runLines(cfg, os.Args[2:])
	case "goto":
		err = runGoto(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags every command accepts.
type common struct {
	class     string
	verbosity int
	logFile   string
}

func (c *common) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&c.class, "class", "", "path to the .class file")
	fs.IntVar(&c.verbosity, "v", cfg.Log.Verbosity, "log verbosity")
	fs.StringVar(&c.logFile, "log", cfg.Log.File, "log file (default stderr)")
}

func (c *common) setup() ([]byte, error) {
	var path *string
	if c.logFile != "" {
		path = &c.logFile
	}
	commonlog.Configure(c.verbosity, path)
	if c.class == "" {
		return nil, errors.New("-class is required")
	}
	return os.ReadFile(c.class)
}

func runMethods(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("methods", flag.ExitOnError)
	var c common
	c.register(fs, cfg)
	_ = fs.Parse(args)

	data, err := c.setup()
	if err != nil {
		return err
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return err
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		line := m.Name + m.Descriptor
		if sig := m.Signature(cf.ConstantPool); sig != nil {
			line += "  " + *sig
		}
		fmt.Println(line)
	}
	return nil
}

type methodFlags struct {
	common
	method    string
	desc      string
	signature string
}

func (f *methodFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	f.common.register(fs, cfg)
	fs.StringVar(&f.method, "method", "", "method name")
	fs.StringVar(&f.desc, "desc", "", "method descriptor")
	fs.StringVar(&f.signature, "signature", "", "generic signature, if requested by source signature")
}

func (f *methodFlags) methodName() setip.MethodName {
	m := setip.MethodName{Name: f.method, Signature: f.desc}
	if f.signature != "" {
		m.GenericSignature = &f.signature
	}
	return m
}

// planned returns the method a plan was made for. Method flags, when given,
// must name the same method.
func (f *methodFlags) planned(m setip.MethodName) (setip.MethodName, error) {
	switch {
	case f.method != "" && f.method != m.Name,
		f.desc != "" && f.desc != m.Signature,
		f.signature != "" && (m.GenericSignature == nil || *m.GenericSignature != f.signature):
		return m, fmt.Errorf("plan is for %s, not %s", m, f.methodName())
	}
	return m, nil
}

func runLines(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("lines", flag.ExitOnError)
	var f methodFlags
	f.register(fs, cfg)
	plan := fs.String("plan", "", "write the targets to this plan file")
	all := fs.Bool("all", false, "analyse every method")
	_ = fs.Parse(args)

	data, err := f.setup()
	if err != nil {
		return err
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return err
	}
	owner, err := cf.ClassName()
	if err != nil {
		return err
	}

	if *all {
		return linesOfAll(owner, cf, data)
	}

	method := f.methodName()
	targets, err := setip.GetAvailableGotoLines(owner, method, data)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	printTargets(method, targets)
	if *plan != "" {
		out, err := setip.NewPlan(owner, method, data, targets).Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*plan, out, 0o644); err != nil {
			return err
		}
		log.Infof("wrote plan %s", *plan)
	}
	return nil
}

// linesOfAll analyses every method concurrently. Methods without targets
// are reported, not treated as failures.
func linesOfAll(owner string, cf *classfile.ClassFile, data []byte) error {
	results := make([]string, len(cf.Methods))
	var g errgroup.Group
	for i := range cf.Methods {
		i := i
		m := &cf.Methods[i]
		method := setip.MethodName{Name: m.Name, Signature: m.Descriptor}
		g.Go(func() error {
			targets, err := setip.GetAvailableGotoLines(owner, method, data)
			switch {
			case err == nil:
				var b strings.Builder
				writeTargets(&b, method, targets)
				results[i] = b.String()
			case errors.Is(err, setip.ErrMethodNotFound), errors.Is(err, setip.ErrNoViableTarget),
				errors.Is(err, setip.ErrUntransformable):
				results[i] = fmt.Sprintf("%s: %v\n", method, err)
			default:
				return fmt.Errorf("%s: %w", method, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, r := range results {
		fmt.Print(r)
	}
	return nil
}

func printTargets(method setip.MethodName, targets *setip.Targets) {
	var b strings.Builder
	writeTargets(&b, method, targets)
	fmt.Print(b.String())
}

func writeTargets(b *strings.Builder, method setip.MethodName, targets *setip.Targets) {
	fmt.Fprintf(b, "%s:\n", method)
	for _, lt := range targets.Lines {
		locals := make([]string, len(lt.Locals))
		for i, s := range lt.Locals {
			locals[i] = s.String()
		}
		fmt.Fprintf(b, "  line %d @%d [%s]\n", lt.Line, lt.Offset, strings.Join(locals, ", "))
	}
	if targets.SourceDebugLine != nil {
		fmt.Fprintf(b, "  source debug: %q\n", *targets.SourceDebugLine)
	}
}

func runGoto(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("goto", flag.ExitOnError)
	var f methodFlags
	f.register(fs, cfg)
	line := fs.Int("line", 0, "target line")
	planPath := fs.String("plan", "", "use targets from this plan file")
	out := fs.String("out", "", "output .class file")
	classPath := fs.String("classpath", strings.Join(cfg.ClassPath, string(os.PathListSeparator)), "user class directories")
	jmod := fs.String("jmod", cfg.JmodPath, "java.base.jmod")
	_ = fs.Parse(args)

	data, err := f.setup()
	if err != nil {
		return err
	}
	if *out == "" {
		return errors.New("-out is required")
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return err
	}
	owner, err := cf.ClassName()
	if err != nil {
		return err
	}

	method := f.methodName()
	var target setip.LineTarget
	if *planPath != "" {
		raw, err := os.ReadFile(*planPath)
		if err != nil {
			return err
		}
		plan, err := setip.UnmarshalPlan(raw)
		if err != nil {
			return err
		}
		if method, err = f.planned(plan.Method); err != nil {
			return err
		}
		if target, err = plan.Target(data, *line); err != nil {
			return err
		}
	} else {
		targets, err := setip.GetAvailableGotoLines(owner, method, data)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}
		var ok bool
		if target, ok = targets.Find(*line); !ok {
			return fmt.Errorf("line %d cannot be targeted; available: %v", *line, lineList(targets))
		}
	}

	m := cf.FindMethodFunc(func(m *classfile.MethodInfo) bool {
		return method.Matches(m.Name, m.Descriptor, m.Signature(cf.ConstantPool))
	})
	if m == nil {
		return fmt.Errorf("%s: %w", method, setip.ErrMethodNotFound)
	}

	var parent hierarchy.ClassLoader
	if *jmod != "" {
		parent = hierarchy.NewJmodClassLoader(*jmod)
	} else {
		log.Warning("no java.base.jmod found; unrelated classes merge to java.lang.Object")
	}
	loader := hierarchy.NewUserClassLoader(config.SplitClassPath(*classPath), parent)
	resolver := hierarchy.NewClassPathResolver(loader)

	res, err := setip.UpdateClassWithGotoLinePrefix(target, method, !m.IsStatic(), data, resolver)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, res.Class, 0o644); err != nil {
		return err
	}
	fmt.Printf("%s: stops at line %d, wrote %s\n", method, res.StopLineNumber, *out)
	return nil
}

func lineList(targets *setip.Targets) []int {
	lines := make([]int, 0, len(targets.Lines))
	for _, lt := range targets.Lines {
		lines = append(lines, lt.Line)
	}
	sort.Ints(lines)
	return lines
}
