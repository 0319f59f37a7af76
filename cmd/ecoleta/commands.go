package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/samirrijal/ecoleta/internal/adapters/ibge"
	"github.com/samirrijal/ecoleta/internal/adapters/registry"
	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/ports"
	"github.com/samirrijal/ecoleta/internal/pkg/config"
	"github.com/samirrijal/ecoleta/internal/pkg/imagepreview"
	"github.com/samirrijal/ecoleta/internal/pkg/logging"
)

type cli struct {
	registry   ports.Registry
	localities ports.LocalityDirectory
	asJSON     bool
	timeout    time.Duration
	out        io.Writer
}

func newRootCmd(version string) *cobra.Command {
	c := &cli{out: os.Stdout}
	var registryURL, ibgeURL string

	root := &cobra.Command{
		Use:           "ecoleta",
		Short:         "Query and register Ecoleta collection points",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load("ecoleta-cli")
			if err != nil {
				return err
			}
			logging.Setup(logging.Options{Level: cfg.Log.Level, Format: "text", Output: cmd.ErrOrStderr()})

			if registryURL == "" {
				registryURL = cfg.Registry.BaseURL
			}
			if ibgeURL == "" {
				ibgeURL = cfg.IBGE.BaseURL
			}
			c.registry = registry.New(registryURL, cfg.Registry.Timeout)
			c.localities = ibge.New(ibgeURL, cfg.IBGE.Timeout)
			c.out = cmd.OutOrStdout()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&registryURL, "registry-url", "", "registry API base URL (default from config)")
	root.PersistentFlags().StringVar(&ibgeURL, "ibge-url", "", "IBGE localities API base URL (default from config)")
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(
		c.itemsCmd(),
		c.statesCmd(),
		c.citiesCmd(),
		c.pointsCmd(),
		c.registerCmd(),
	)
	return root
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func (c *cli) itemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List the recyclable-item catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			items, err := c.registry.ListItems(ctx)
			if err != nil {
				return err
			}
			return c.print(items, "ID\tTITLE\tIMAGE", func(w io.Writer) {
				for _, it := range items {
					fmt.Fprintf(w, "%d\t%s\t%s\n", it.ID, it.Title, it.ImageURL)
				}
			})
		},
	}
}

func (c *cli) statesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "states",
		Short: "List Brazilian states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			states, err := c.localities.ListStates(ctx)
			if err != nil {
				return err
			}
			return c.print(states, "UF\tNAME", func(w io.Writer) {
				for _, s := range states {
					fmt.Fprintf(w, "%s\t%s\n", s.Sigla, s.Nome)
				}
			})
		},
	}
}

func (c *cli) citiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cities <uf>",
		Short: "List the cities of a state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			cities, err := c.localities.ListCities(ctx, strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return c.print(cities, "ID\tNAME", func(w io.Writer) {
				for _, city := range cities {
					fmt.Fprintf(w, "%d\t%s\n", city.ID, city.Nome)
				}
			})
		},
	}
}

func (c *cli) pointsCmd() *cobra.Command {
	var uf, city, items string
	cmd := &cobra.Command{
		Use:   "points",
		Short: "List collection points of a city",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := domain.ParseSelection(items)
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			points, err := c.registry.ListPoints(ctx, domain.PointQuery{
				Region: domain.Region{UF: strings.ToUpper(uf), City: city},
				Items:  sel,
			})
			if err != nil {
				return err
			}
			return c.print(points, "ID\tNAME\tLATITUDE\tLONGITUDE", func(w io.Writer) {
				for _, p := range points {
					fmt.Fprintf(w, "%d\t%s\t%.6f\t%.6f\n", p.ID, p.Name, p.Latitude, p.Longitude)
				}
			})
		},
	}
	cmd.Flags().StringVar(&uf, "uf", "", "state code, e.g. SP")
	cmd.Flags().StringVar(&city, "city", "", "city name")
	cmd.Flags().StringVar(&items, "items", "", "comma-separated item ids")
	_ = cmd.MarkFlagRequired("uf")
	_ = cmd.MarkFlagRequired("city")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var (
		form      domain.RegistrationForm
		items     string
		imagePath string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new collection point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := domain.ParseSelection(items)
			if err != nil {
				return err
			}
			form.Items = sel
			form.UF = strings.ToUpper(form.UF)

			ctx, cancel := c.context(cmd)
			defer cancel()

			// Use the IBGE spelling of the city, as the web form does.
			cities, err := c.localities.ListCities(ctx, form.UF)
			if err != nil {
				return err
			}
			name, ok := matchCity(cities, form.City)
			if !ok {
				return domain.NewValidationError("city", fmt.Sprintf("%q is not a city of %s", form.City, form.UF))
			}
			form.City = name

			if imagePath != "" {
				img, err := loadImage(imagePath)
				if err != nil {
					return err
				}
				form.Image = img
			}

			reg, err := form.Validate()
			if err != nil {
				return err
			}
			if err := c.registry.CreatePoint(ctx, reg); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "registered %q in %s/%s\n", reg.Name, reg.City, reg.UF)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Name, "name", "", "establishment name")
	f.StringVar(&form.Email, "email", "", "contact email")
	f.StringVar(&form.Whatsapp, "whatsapp", "", "contact WhatsApp number")
	f.StringVar(&form.UF, "uf", "", "state code")
	f.StringVar(&form.City, "city", "", "city name")
	f.Float64Var(&form.Location.Latitude, "lat", 0, "latitude")
	f.Float64Var(&form.Location.Longitude, "lon", 0, "longitude")
	f.StringVar(&items, "items", "", "comma-separated item ids")
	f.StringVar(&imagePath, "image", "", "path to an establishment photo")
	return cmd
}

func matchCity(cities []domain.City, name string) (string, bool) {
	folded := domain.FoldName(name)
	for _, city := range cities {
		if domain.FoldName(city.Nome) == folded {
			return city.Nome, true
		}
	}
	return "", false
}

func loadImage(path string) (*domain.ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	contentType, err := imagepreview.New(0, 0).Inspect(data)
	if err != nil {
		return nil, domain.NewValidationError("image", err.Error())
	}
	return &domain.ImageFile{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (c *cli) print(v any, header string, rows func(w io.Writer)) error {
	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	return w.Flush()
}
