// Command sandboxctl is a minimal runnable example of the sandbox
// lifecycle: build, load the runtime, compile one handler read from a
// file, call it once with a JSON event read from stdin, and print the
// result. It backs onto the in-process fake engine, not a real
// hardware-virtualized one (see internal/fakevm).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/kata-containers/hyperlight-js/internal/fakevm"
	"github.com/kata-containers/hyperlight-js/sandbox"
)

var log = logrus.WithField("component", "sandboxctl")

func main() {
	app := cli.NewApp()
	app.Name = "sandboxctl"
	app.Usage = "build a sandbox, compile a handler, call it once"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "handler-name", Value: "main", Usage: "routing key the handler is registered under"},
		cli.StringFlag{Name: "handler-file", Usage: "path to a file naming the fake handler kind to compile (e.g. 'echo', 'calculator')"},
		cli.StringFlag{Name: "heap-bytes", Value: "1MB", Usage: "human-readable size, e.g. 64MB, 1GiB"},
		cli.StringFlag{Name: "stack-bytes", Value: "64KB", Usage: "human-readable size, e.g. 64MB, 1GiB"},
		cli.StringFlag{Name: "input-buffer-bytes", Value: "64KB", Usage: "human-readable size, e.g. 64MB, 1GiB"},
		cli.StringFlag{Name: "output-buffer-bytes", Value: "64KB", Usage: "human-readable size, e.g. 64MB, 1GiB"},
		cli.IntFlag{Name: "wall-clock-timeout-ms", Usage: "0 disables the monitor"},
		cli.IntFlag{Name: "cpu-timeout-ms", Usage: "0 disables the monitor"},
		cli.BoolFlag{Name: "debug"},
	}

	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Error("sandboxctl failed")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	handlerFile := c.String("handler-file")
	if handlerFile == "" {
		return cli.NewExitError("handler-file is required", 1)
	}
	sourceBytes, err := os.ReadFile(handlerFile)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reading handler-file: %v", err), 1)
	}

	eventBytes, err := io.ReadAll(os.Stdin)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("reading event from stdin: %v", err), 1)
	}
	var event any
	if err := json.Unmarshal(eventBytes, &event); err != nil {
		return cli.NewExitError(fmt.Sprintf("event is not valid JSON: %v", err), 1)
	}

	heapBytes, err := parseSize(c.String("heap-bytes"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("heap-bytes: %v", err), 1)
	}
	stackBytes, err := parseSize(c.String("stack-bytes"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("stack-bytes: %v", err), 1)
	}
	inputBufferBytes, err := parseSize(c.String("input-buffer-bytes"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("input-buffer-bytes: %v", err), 1)
	}
	outputBufferBytes, err := parseSize(c.String("output-buffer-bytes"))
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("output-buffer-bytes: %v", err), 1)
	}

	ctx := context.Background()
	hv := fakevm.NewHypervisor(nil)

	proto, err := sandbox.NewBuilder(hv).
		SetHeapSize(heapBytes).
		SetStackSize(stackBytes).
		SetInputBufferSize(inputBufferBytes).
		SetOutputBufferSize(outputBufferBytes).
		Build(ctx)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("build: %v", err), 1)
	}

	rt, err := proto.LoadRuntime(ctx)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("load runtime: %v", err), 1)
	}

	handlerName := c.String("handler-name")
	if err := rt.AddHandler(handlerName, string(sourceBytes)); err != nil {
		return cli.NewExitError(fmt.Sprintf("add handler: %v", err), 1)
	}

	loaded, err := rt.GetLoaded(ctx)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("get loaded: %v", err), 1)
	}

	opts := sandbox.CallOptions{}
	if ms := c.Int("wall-clock-timeout-ms"); ms > 0 {
		opts.WallClockTimeoutMS = &ms
	}
	if ms := c.Int("cpu-timeout-ms"); ms > 0 {
		opts.CPUTimeoutMS = &ms
	}

	out, err := loaded.CallHandler(ctx, handlerName, event, opts)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("call-handler: %v (poisoned=%v)", err, loaded.Poisoned()), 1)
	}

	fmt.Println(string(out))
	return nil
}

// parseSize accepts the human-readable size strings docker/go-units
// parses elsewhere in the Kata toolchain (e.g. "64MB", "1GiB").
func parseSize(s string) (uint64, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}
