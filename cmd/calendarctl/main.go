// Command calendarctl runs calendar record operations against the configured
// store.
//
//	calendarctl [--config FILE] [--kind event|commitment] [--project P] [--user U] COMMAND [ARG]
//
// Commands: create JSON, get ID, list, update JSON, delete ID, delete-all,
// count. create and update read the record from stdin when JSON is omitted.
package main

import (
	"bytes"
	"calendarcore/internal/config"
	"calendarcore/internal/core"
	"calendarcore/internal/entity"
	"calendarcore/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jessevdk/go-flags"
)

// Options are the global calendarctl flags.
type Options struct {
	Config  string `short:"c" long:"config" description:"TOML config file"`
	Kind    string `short:"k" long:"kind" description:"record kind" default:"event"`
	Project string `short:"p" long:"project" description:"project scope" default:"default"`
	User    string `short:"u" long:"user" description:"acting user" default:"admin"`
}

var exitFunc = os.Exit

var commands = map[string]string{
	"create":     entity.VerbCreate,
	"get":        entity.VerbGet,
	"list":       entity.VerbGetAll,
	"update":     entity.VerbUpdate,
	"delete":     entity.VerbDelete,
	"delete-all": entity.VerbDeleteAll,
	"count":      entity.VerbCount,
}

func main() {
	exitFunc(cli(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func cli(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] create|get|list|update|delete|delete-all|count [ARG]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			_, _ = fmt.Fprintln(stdout, ferr.Message)
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "calendarctl: %v\n", err)
		return 2
	}
	if len(rest) == 0 {
		_, _ = fmt.Fprintln(stderr, "calendarctl: missing command")
		return 2
	}
	verb, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "calendarctl: unknown command %q\n", rest[0])
		return 2
	}
	body, err := requestBody(verb, rest[1:], stdin)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "calendarctl: %v\n", err)
		return 2
	}
	if err := run(context.Background(), opts, verb, body, stdout, stderr); err != nil {
		_, _ = fmt.Fprintf(stderr, "calendarctl: %s failed: %v\n", rest[0], err)
		return 1
	}
	return 0
}

func requestBody(verb string, args []string, stdin io.Reader) ([]byte, error) {
	switch verb {
	case entity.VerbGet, entity.VerbDelete:
		if len(args) != 1 {
			return nil, errors.New("expected a record id")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", args[0])
		}
		return json.Marshal(entity.IDRequest{ID: json.RawMessage(strconv.Itoa(id))})
	case entity.VerbCreate, entity.VerbUpdate:
		if len(args) > 1 {
			return nil, errors.New("expected one JSON record")
		}
		if len(args) == 1 {
			return []byte(args[0]), nil
		}
		return io.ReadAll(stdin)
	default:
		if len(args) != 0 {
			return nil, fmt.Errorf("unexpected arguments %v", args)
		}
		return nil, nil
	}
}

func run(ctx context.Context, opts *Options, verb string, body []byte, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return err
	}
	rt, err := core.Open(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	session := domain.Session{User: opts.User, Project: opts.Project}
	out, err := rt.Invoke(ctx, session, opts.Kind, verb, body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(out)
	}
	pretty.WriteByte('\n')
	_, err = stdout.Write(pretty.Bytes())
	return err
}
