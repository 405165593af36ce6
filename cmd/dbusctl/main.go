// Command dbusctl is a small demonstration client for the godbus-core
// library: it dials a bus address, issues a method call or lists bus
// names, and prints the result.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	dbus "github.com/marmos91/godbus-core"
	"github.com/marmos91/godbus-core/busaddr"
)

func main() {
	app := cli.NewApp()
	app.Name = "dbusctl"
	app.Usage = "talk to a D-Bus message bus"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "address",
			Usage: "bus address (defaults to the session bus)",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Second,
			Usage: "per-call timeout",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "names",
			Usage:     "list every name currently registered on the bus",
			ArgsUsage: " ",
			Action:    runNames,
		},
		{
			Name:      "call",
			Usage:     "issue a method call with no arguments",
			ArgsUsage: "<destination> <path> <interface.member>",
			Action:    runCall,
		},
		{
			Name:      "introspect",
			Usage:     "print the introspection XML for an object",
			ArgsUsage: "<destination> <path>",
			Action:    runIntrospect,
		},
		{
			Name:      "monitor",
			Usage:     "print every signal seen on the bus until interrupted",
			ArgsUsage: " ",
			Action:    runMonitor,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func connect(c *cli.Context) (*dbus.Connection, error) {
	address := c.GlobalString("address")
	if address == "" {
		var err error
		address, err = busaddr.SessionBusAddress()
		if err != nil {
			return nil, err
		}
	}
	conn, isTCP, err := busaddr.Dial(address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	bus, err := dbus.Dial(conn, isTCP)
	if err != nil {
		return nil, fmt.Errorf("handshake with %s: %w", address, err)
	}
	return bus, nil
}

func runNames(c *cli.Context) error {
	bus, err := connect(c)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
	defer cancel()

	names, err := bus.ListNames(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if strings.HasPrefix(n, ":") {
			color.Cyan(n)
		} else {
			fmt.Println(n)
		}
	}
	return nil
}

func runCall(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.NewExitError("usage: dbusctl call <destination> <path> <interface.member>", 2)
	}
	destination, path, qualified := c.Args()[0], c.Args()[1], c.Args()[2]
	iface, member, err := splitQualifiedMember(qualified)
	if err != nil {
		return err
	}

	bus, err := connect(c)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
	defer cancel()

	reply, err := bus.Call(ctx, destination, dbus.ObjectPath(path), iface, member)
	if err != nil {
		color.Red("error: %v", err)
		return cli.NewExitError("", 1)
	}
	for _, v := range reply.Body {
		raw, err := v.Raw()
		if err != nil {
			return err
		}
		fmt.Printf("%#v\n", raw)
	}
	return nil
}

func runIntrospect(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: dbusctl introspect <destination> <path>", 2)
	}
	destination, path := c.Args()[0], c.Args()[1]

	bus, err := connect(c)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
	defer cancel()

	reply, err := bus.Call(ctx, destination, dbus.ObjectPath(path), "org.freedesktop.DBus.Introspectable", "Introspect")
	if err != nil {
		return err
	}
	if len(reply.Body) == 1 {
		fmt.Println(reply.Body[0].Str())
	}
	return nil
}

func runMonitor(c *cli.Context) error {
	bus, err := connect(c)
	if err != nil {
		return err
	}
	defer bus.Close()

	sub, err := bus.Subscribe(context.Background(), dbus.SubscriptionSpec{}, func(msg *dbus.Message) {
		path, _ := msg.Path()
		iface, _ := msg.Interface()
		member, _ := msg.Member()
		color.Yellow("signal %s %s.%s", path, iface, member)
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	select {}
}

func splitQualifiedMember(s string) (iface, member string, err error) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return "", "", fmt.Errorf("%q is not of the form interface.member", s)
	}
	return s[:i], s[i+1:], nil
}
