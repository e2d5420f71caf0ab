package novactl

import (
	gocontext "context"
	"encoding/json"
	"fmt"
	"strings"

	simplejson "github.com/bitly/go-simplejson"
	humanize "github.com/dustin/go-humanize"
	"github.com/getsentry/raven-go"
	"github.com/pborman/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/stackhand/novactl/compute"
	"github.com/stackhand/novactl/config"
	"github.com/stackhand/novactl/context"
	"github.com/stackhand/novactl/metrics"
)

// CLI is the top level of execution for the whole shebang
type CLI struct {
	c *cli.Context

	ctx    gocontext.Context
	cancel gocontext.CancelFunc
	logger *logrus.Entry

	Config *config.ProviderConfig
	Client *compute.Client
}

// NewCLI creates a new *CLI from a *cli.Context
func NewCLI(c *cli.Context) *CLI {
	return &CLI{c: c}
}

// Setup runs one-time preparatory actions: logging, sentry, metrics, and
// the authenticated compute client.
func (i *CLI) Setup() error {
	if i.c.GlobalBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	ctx = context.FromUUID(ctx, uuid.NewRandom().String())
	logger := context.LoggerFromContext(ctx)

	i.ctx = ctx
	i.cancel = cancel
	i.logger = logger

	cfg := config.FromCLIContext(i.c)
	i.Config = cfg

	logger.WithFields(logrus.Fields{
		"cfg": fmt.Sprintf("%#v", cfg),
	}).Debug("read config")

	i.setupSentry()
	i.setupMetrics()

	client, err := compute.New(ctx, cfg)
	if err != nil {
		logger.WithField("err", err).Error("couldn't create compute client")
		return err
	}

	i.Client = client
	return nil
}

func (i *CLI) setupSentry() {
	if !i.Config.IsSet("SENTRY_DSN") {
		return
	}

	err := raven.SetDSN(i.Config.Get("SENTRY_DSN"))
	if err != nil {
		i.logger.WithField("err", err).Error("couldn't set DSN in raven")
	}
}

func (i *CLI) setupMetrics() {
	go metrics.ReportMemstatsMetrics()

	if i.Config.IsSet("LIBRATO_EMAIL") && i.Config.IsSet("LIBRATO_TOKEN") && i.Config.IsSet("LIBRATO_SOURCE") {
		i.logger.Info("starting librato metrics reporter")

		metrics.StartLibratoReporter(
			i.Config.Get("LIBRATO_EMAIL"),
			i.Config.Get("LIBRATO_TOKEN"),
			i.Config.Get("LIBRATO_SOURCE"))
	} else if !i.c.GlobalBool("silence-metrics") {
		i.logger.Info("starting logger metrics reporter")

		metrics.StartLogReporter()
	}
}

func run(f func(*CLI, *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		i := NewCLI(c)
		if err := i.Setup(); err != nil {
			return err
		}
		defer i.cancel()
		return f(i, c)
	}
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// metadataFromJSON flattens a JSON object into the string-to-string map
// the compute metadata APIs want.
func metadataFromJSON(raw string) (map[string]string, error) {
	js, err := simplejson.NewJson([]byte(raw))
	if err != nil {
		return nil, err
	}

	obj, err := js.Map()
	if err != nil {
		return nil, err
	}

	md := map[string]string{}
	for k, v := range obj {
		md[k] = fmt.Sprintf("%v", v)
	}
	return md, nil
}

// metadataFromArgs turns trailing key=value arguments into a map.
func metadataFromArgs(args []string) (map[string]string, error) {
	md := map[string]string{}
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%q is not a key=value pair", arg)
		}
		md[parts[0]] = parts[1]
	}
	return md, nil
}

// Commands is the full novactl command tree.
func Commands() []cli.Command {
	return []cli.Command{
		serverCommand(),
		volumeCommand(),
		flavorCommand(),
		keypairCommand(),
		imageCommand(),
		secgroupCommand(),
	}
}

func serverCommand() cli.Command {
	return cli.Command{
		Name:  "server",
		Usage: "manage servers",
		Subcommands: []cli.Command{
			{
				Name:  "list",
				Usage: "list servers, summary view",
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.ServerList()
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:  "list-detailed",
				Usage: "list servers with extended attributes",
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.ServerListDetailed()
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:      "show",
				Usage:     "show one server",
				ArgsUsage: "<server-id>",
				Flags: []cli.Flag{
					cli.BoolFlag{Name: "libcloud", Usage: "use the short node shape instead of the full detail"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					id := c.Args().First()
					if id == "" {
						return fmt.Errorf("a server id is required")
					}
					if c.Bool("libcloud") {
						node, err := i.Client.ServerShowLibcloud(id)
						if err != nil {
							return err
						}
						return printJSON(node)
					}
					detail, err := i.Client.ServerShow(id)
					if err != nil {
						return err
					}
					return printJSON(detail)
				}),
			},
			{
				Name:      "boot",
				Usage:     "boot a server and wait until it is queryable",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "flavor", Usage: "flavor name, resolved to an id"},
					cli.StringFlag{Name: "flavor-id", Usage: "flavor id, used as-is"},
					cli.StringFlag{Name: "image", Usage: "image name, resolved to an id"},
					cli.StringFlag{Name: "image-id", Usage: "image id, used as-is"},
					cli.StringFlag{Name: "keypair", Usage: "keypair name to inject"},
					cli.StringFlag{Name: "availability-zone"},
					cli.StringSliceFlag{Name: "secgroup", Usage: "security group name, repeatable"},
					cli.StringSliceFlag{Name: "network", Usage: "network id, repeatable"},
					cli.StringFlag{Name: "metadata-json", Usage: "server metadata as a JSON object"},
					cli.DurationFlag{Name: "timeout", Usage: "override the wait timeout"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("a server name is required")
					}

					opts := compute.BootOpts{
						Name:             name,
						FlavorRef:        c.String("flavor-id"),
						ImageRef:         c.String("image-id"),
						KeyName:          c.String("keypair"),
						AvailabilityZone: c.String("availability-zone"),
						SecurityGroups:   c.StringSlice("secgroup"),
						Networks:         c.StringSlice("network"),
						Timeout:          c.Duration("timeout"),
					}

					if fl := c.String("flavor"); fl != "" {
						ref, err := i.Client.FlavorRef(fl)
						if err != nil {
							return err
						}
						opts.FlavorRef = ref
					}
					if img := c.String("image"); img != "" {
						ref, err := i.Client.ImageRef(img)
						if err != nil {
							return err
						}
						opts.ImageRef = ref
					}
					if raw := c.String("metadata-json"); raw != "" {
						md, err := metadataFromJSON(raw)
						if err != nil {
							return err
						}
						opts.Metadata = md
					}

					i.logger.WithFields(logrus.Fields{
						"name":   name,
						"flavor": opts.FlavorRef,
						"image":  opts.ImageRef,
					}).Info("booting server")

					node, err := i.Client.Boot(i.ctx, opts)
					if err != nil {
						return err
					}
					return printJSON(node)
				}),
			},
			serverSimpleAction("delete", "delete a server", (*compute.Client).Delete),
			serverSimpleAction("suspend", "suspend a server", (*compute.Client).Suspend),
			serverSimpleAction("resume", "resume a suspended server", (*compute.Client).Resume),
			serverSimpleAction("lock", "lock a server", (*compute.Client).Lock),
			serverSimpleAction("unlock", "unlock a server", (*compute.Client).Unlock),
		},
	}
}

func serverSimpleAction(name, usage string, f func(*compute.Client, string) error) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<server-id>",
		Action: run(func(i *CLI, c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("a server id is required")
			}
			if err := f(i.Client, id); err != nil {
				return err
			}
			i.logger.WithFields(logrus.Fields{
				"server": id,
				"action": name,
			}).Info("done")
			return nil
		}),
	}
}

func volumeCommand() cli.Command {
	return cli.Command{
		Name:  "volume",
		Usage: "manage block volumes",
		Subcommands: []cli.Command{
			{
				Name:  "list",
				Usage: "list volumes",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "name", Usage: "filter by display name"},
					cli.StringFlag{Name: "status", Usage: "filter by status"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.VolumeList(compute.VolumeListOpts{
						Name:   c.String("name"),
						Status: c.String("status"),
					})
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:      "show",
				Usage:     "show one volume",
				ArgsUsage: "<volume-name>",
				Action: run(func(i *CLI, c *cli.Context) error {
					vol, err := i.Client.VolumeShow(c.Args().First())
					if err != nil {
						return err
					}
					return printJSON(vol)
				}),
			},
			{
				Name:      "create",
				Usage:     "create a volume",
				ArgsUsage: "<volume-name>",
				Flags: []cli.Flag{
					cli.IntFlag{Name: "size", Usage: "size in GiB"},
					cli.StringFlag{Name: "snapshot", Usage: "snapshot id to create from"},
					cli.StringFlag{Name: "type", Usage: "volume type"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					name := c.Args().First()
					size := c.Int("size")
					if name == "" || size <= 0 {
						return fmt.Errorf("a volume name and a positive --size are required")
					}

					i.logger.WithFields(logrus.Fields{
						"volume": name,
						"size":   humanize.IBytes(uint64(size) * humanize.GiByte),
					}).Info("creating volume")

					vol, err := i.Client.VolumeCreate(name, size, c.String("snapshot"), c.String("type"))
					if err != nil {
						return err
					}
					return printJSON(vol)
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a volume",
				ArgsUsage: "<volume-name>",
				Action: run(func(i *CLI, c *cli.Context) error {
					return i.Client.VolumeDelete(c.Args().First())
				}),
			},
			{
				Name:      "attach",
				Usage:     "attach a volume to a server and wait for in-use",
				ArgsUsage: "<volume-name> <server-name>",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "device", Value: "/dev/xvdb", Usage: "device path on the server"},
					cli.DurationFlag{Name: "timeout", Usage: "override the wait timeout"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					if len(c.Args()) < 2 {
						return fmt.Errorf("a volume name and a server name are required")
					}
					vol, err := i.Client.VolumeAttach(i.ctx,
						c.Args().Get(0), c.Args().Get(1),
						c.String("device"), c.Duration("timeout"))
					if err != nil {
						return err
					}
					return printJSON(vol)
				}),
			},
			{
				Name:      "detach",
				Usage:     "detach a volume from a server and wait for available",
				ArgsUsage: "<volume-name> <server-name>",
				Flags: []cli.Flag{
					cli.DurationFlag{Name: "timeout", Usage: "override the wait timeout"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					if len(c.Args()) < 2 {
						return fmt.Errorf("a volume name and a server name are required")
					}
					vol, err := i.Client.VolumeDetach(i.ctx,
						c.Args().Get(0), c.Args().Get(1), c.Duration("timeout"))
					if err != nil {
						return err
					}
					return printJSON(vol)
				}),
			},
		},
	}
}

func flavorCommand() cli.Command {
	return cli.Command{
		Name:  "flavor",
		Usage: "manage flavors",
		Subcommands: []cli.Command{
			{
				Name:  "list",
				Usage: "list flavors",
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.FlavorList()
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:      "create",
				Usage:     "create a flavor",
				ArgsUsage: "<flavor-name>",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "id", Usage: "flavor id, auto-assigned when empty"},
					cli.IntFlag{Name: "ram", Usage: "memory in MiB"},
					cli.IntFlag{Name: "disk", Usage: "disk in GiB"},
					cli.IntFlag{Name: "vcpus"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("a flavor name is required")
					}
					fl, err := i.Client.FlavorCreate(name, c.String("id"),
						c.Int("ram"), c.Int("disk"), c.Int("vcpus"))
					if err != nil {
						return err
					}
					return printJSON(fl)
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a flavor",
				ArgsUsage: "<flavor-id>",
				Action: run(func(i *CLI, c *cli.Context) error {
					return i.Client.FlavorDelete(c.Args().First())
				}),
			},
		},
	}
}

func keypairCommand() cli.Command {
	return cli.Command{
		Name:  "keypair",
		Usage: "manage SSH keypairs",
		Subcommands: []cli.Command{
			{
				Name:  "list",
				Usage: "list keypairs",
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.KeypairList()
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:      "add",
				Usage:     "register a public key",
				ArgsUsage: "<keypair-name>",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "pubfile", Usage: "path to a public key file"},
					cli.StringFlag{Name: "pubkey", Usage: "public key material"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("a keypair name is required")
					}
					kp, err := i.Client.KeypairAdd(name, c.String("pubfile"), c.String("pubkey"))
					if err != nil {
						return err
					}
					return printJSON(kp)
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a keypair",
				ArgsUsage: "<keypair-name>",
				Action: run(func(i *CLI, c *cli.Context) error {
					return i.Client.KeypairDelete(c.Args().First())
				}),
			},
		},
	}
}

func imageCommand() cli.Command {
	return cli.Command{
		Name:  "image",
		Usage: "manage server images",
		Subcommands: []cli.Command{
			{
				Name:      "list",
				Usage:     "list images, optionally narrowed to one name",
				ArgsUsage: "[image-name]",
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.ImageList(c.Args().First())
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:      "meta-set",
				Usage:     "merge metadata into an image",
				ArgsUsage: "[key=value ...]",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "id", Usage: "image id"},
					cli.StringFlag{Name: "name", Usage: "image name, resolved to an id"},
					cli.StringFlag{Name: "metadata-json", Usage: "metadata as a JSON object"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					md, err := metadataFromArgs(c.Args())
					if err != nil {
						return err
					}
					if raw := c.String("metadata-json"); raw != "" {
						fromJSON, err := metadataFromJSON(raw)
						if err != nil {
							return err
						}
						for k, v := range fromJSON {
							md[k] = v
						}
					}
					if len(md) == 0 {
						return fmt.Errorf("no metadata given")
					}
					meta, err := i.Client.ImageMetaSet(c.String("id"), c.String("name"), md)
					if err != nil {
						return err
					}
					return printJSON(meta)
				}),
			},
			{
				Name:      "meta-delete",
				Usage:     "remove metadata keys from an image",
				ArgsUsage: "<key> [key ...]",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "id", Usage: "image id"},
					cli.StringFlag{Name: "name", Usage: "image name, resolved to an id"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					if len(c.Args()) == 0 {
						return fmt.Errorf("at least one metadata key is required")
					}
					return i.Client.ImageMetaDelete(c.String("id"), c.String("name"), c.Args())
				}),
			},
		},
	}
}

func secgroupCommand() cli.Command {
	return cli.Command{
		Name:  "secgroup",
		Usage: "manage security groups",
		Subcommands: []cli.Command{
			{
				Name:  "list",
				Usage: "list security groups",
				Action: run(func(i *CLI, c *cli.Context) error {
					ret, err := i.Client.SecGroupList()
					if err != nil {
						return err
					}
					return printJSON(ret)
				}),
			},
			{
				Name:      "create",
				Usage:     "create a security group",
				ArgsUsage: "<secgroup-name>",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "description"},
				},
				Action: run(func(i *CLI, c *cli.Context) error {
					name := c.Args().First()
					if name == "" {
						return fmt.Errorf("a security group name is required")
					}
					sg, err := i.Client.SecGroupCreate(name, c.String("description"))
					if err != nil {
						return err
					}
					return printJSON(sg)
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a security group",
				ArgsUsage: "<secgroup-name>",
				Action: run(func(i *CLI, c *cli.Context) error {
					return i.Client.SecGroupDelete(c.Args().First())
				}),
			},
		},
	}
}
