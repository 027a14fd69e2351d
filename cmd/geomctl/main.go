package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/destel/rill"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/osm-geometry-store/internal/app"
	"github.com/mohammed-shakir/osm-geometry-store/internal/core/config"
	"github.com/mohammed-shakir/osm-geometry-store/internal/geometry"
	"github.com/mohammed-shakir/osm-geometry-store/internal/ingest/kafkaconsumer"
	"github.com/mohammed-shakir/osm-geometry-store/internal/ingest/kafkaproducer"
	"github.com/mohammed-shakir/osm-geometry-store/internal/logger"
	"github.com/mohammed-shakir/osm-geometry-store/internal/storage/geometrystore"
)

var Version = "dev"

var cli struct {
	Logging string      `help:"Logging verbosity." enum:"error,warn,info,debug,trace" short:"l" default:"warn"`
	Version VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	Driver  string      `help:"Database driver (postgres or sqlite). Defaults to DB_DRIVER."`
	DSN     string      `help:"Database DSN. Defaults to DB_DSN." name:"dsn"`

	Migrate struct{} `cmd:"" help:"Creates the geometry and quest tables if missing."`
	Get     struct {
		Type string `arg:"" help:"Element type (node, way, relation)."`
		ID   int64  `arg:"" help:"Element id."`
	} `cmd:"" help:"Prints the stored geometry of an element as GeoJSON."`
	Keys struct {
		BBox []float64 `arg:"" name:"bbox" help:"Bounding box as west,south,east,north."`
	} `cmd:"" help:"Lists the elements whose center lies in the bounding box."`
	Import struct {
		Input string `arg:"" help:"GeoJSON FeatureCollection; feature ids look like way/12." type:"existingfile" placeholder:"<input-file>"`
	} `cmd:"" help:"Stores every feature of a GeoJSON file in one transaction."`
	Delete struct {
		Type string `arg:"" help:"Element type (node, way, relation)."`
		ID   int64  `arg:"" help:"Element id."`
	} `cmd:"" help:"Deletes the stored geometry of an element."`
	Cleanup struct{} `cmd:"" help:"Deletes every geometry no reference table points to."`
	Publish struct {
		Input   string `arg:"" help:"GeoJSON FeatureCollection; feature ids look like way/12." type:"existingfile" placeholder:"<input-file>"`
		Brokers string `help:"Kafka brokers. Defaults to KAFKA_BROKERS."`
		Topic   string `help:"Kafka topic. Defaults to KAFKA_TOPIC."`
		Seq     uint64 `help:"Sequence number stamped on every event; 0 disables stale event checks."`
	} `cmd:"" help:"Publishes every feature of a GeoJSON file as put events to Kafka."`
}

type VersionFlag string

func (v VersionFlag) Decode(*kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                     { return true }
func (v VersionFlag) BeforeApply(k *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	k.Exit(0)
	return nil
}

func main() {
	_ = godotenv.Load(".env")

	kctx := kong.Parse(
		&cli,
		kong.Name("geomctl"),
		kong.Description("Inspect and maintain the element geometry store."),
		kong.UsageOnError(),
		kong.Vars{
			"version": Version,
		},
	)

	cfg := config.FromEnv()
	if cli.Driver != "" {
		cfg.Database.Driver = strings.ToLower(cli.Driver)
	}
	if cli.DSN != "" {
		cfg.Database.DSN = cli.DSN
	}

	zl := logger.Build(logger.Config{Level: cli.Logging, Console: true, Component: "geomctl"}, os.Stderr)
	log := logger.NewSlog(&zl)

	if kctx.Command() == "publish <input>" {
		kctx.FatalIfErrorf(publish(cfg))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, store, err := app.OpenStore(ctx, cfg.Database, log)
	kctx.FatalIfErrorf(err)
	defer func() { _ = db.Close() }()

	switch kctx.Command() {
	case "migrate":
		// OpenStore already ensured the schema
		fmt.Println("schema ready")
	case "get <type> <id>":
		err = get(ctx, store, os.Stdout)
	case "keys <bbox>":
		err = keys(ctx, store, os.Stdout)
	case "import <input>":
		err = importFile(ctx, store, cli.Import.Input)
	case "delete <type> <id>":
		err = del(ctx, store)
	case "cleanup":
		var n int64
		if n, err = store.DeleteUnreferenced(ctx); err == nil {
			fmt.Printf("deleted %s unreferenced geometries\n", humanize.Comma(n))
		}
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	kctx.FatalIfErrorf(err)
}

func elementKey(typ string, id int64) (geometry.ElementKey, error) {
	t, err := geometry.ParseElementType(typ)
	if err != nil {
		return geometry.ElementKey{}, err
	}
	return geometry.NewElementKey(t, id), nil
}

func get(ctx context.Context, store geometrystore.Store, out io.Writer) error {
	key, err := elementKey(cli.Get.Type, cli.Get.ID)
	if err != nil {
		return err
	}
	g, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no geometry stored for %s", key)
	}
	f := geojson.NewFeature(geometry.ToOrb(g))
	f.ID = key.String()
	c := g.Center()
	f.Properties["center"] = []float64{c.Lon(), c.Lat()}
	f.Properties["kind"] = g.Kind().String()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func keys(ctx context.Context, store geometrystore.Store, out io.Writer) error {
	b := cli.Keys.BBox
	if len(b) != 4 {
		return fmt.Errorf("bbox needs 4 numbers (west,south,east,north), got %d", len(b))
	}
	bbox, err := geometry.NewBoundingBox(b[1], b[0], b[3], b[2])
	if err != nil {
		return err
	}
	ks, err := store.GetAllKeys(ctx, bbox)
	if err != nil {
		return err
	}
	for _, k := range ks {
		if _, err := fmt.Fprintln(out, k); err != nil {
			return err
		}
	}
	return nil
}

func importFile(ctx context.Context, store geometrystore.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	entries, err := parseCollection(raw)
	if err != nil {
		return err
	}
	if err := store.PutAll(ctx, entries); err != nil {
		return err
	}
	fmt.Printf("stored %s geometries\n", humanize.Comma(int64(len(entries))))
	return nil
}

type indexedFeature struct {
	index   int
	feature *geojson.Feature
}

// parseCollection reads features whose id is "<type>/<id>". properties.center
// overrides the computed representative point. Features convert in parallel;
// the result keeps file order so later duplicates win in PutAll.
func parseCollection(raw []byte) ([]geometrystore.Entry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	in := make([]indexedFeature, len(fc.Features))
	for i, f := range fc.Features {
		in[i] = indexedFeature{index: i, feature: f}
	}
	entries := rill.OrderedMap(rill.FromSlice(in, nil), runtime.NumCPU(), toEntry)
	return rill.ToSlice(entries)
}

func toEntry(in indexedFeature) (geometrystore.Entry, error) {
	i, f := in.index, in.feature
	id, ok := f.ID.(string)
	if !ok {
		return geometrystore.Entry{}, fmt.Errorf("feature %d: id must be a string like way/12", i)
	}
	typ, num, found := strings.Cut(id, "/")
	if !found {
		return geometrystore.Entry{}, fmt.Errorf("feature %d: id %q is not <type>/<id>", i, id)
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return geometrystore.Entry{}, fmt.Errorf("feature %d: id %q: %w", i, id, err)
	}
	key, err := elementKey(typ, n)
	if err != nil {
		return geometrystore.Entry{}, fmt.Errorf("feature %d: %w", i, err)
	}
	center, err := featureCenter(f)
	if err != nil {
		return geometrystore.Entry{}, fmt.Errorf("feature %s: %w", key, err)
	}
	g, err := geometry.FromOrb(f.Geometry, center)
	if err != nil {
		return geometrystore.Entry{}, fmt.Errorf("feature %s: %w", key, err)
	}
	return geometrystore.Entry{Key: key, Geometry: g}, nil
}

func publish(cfg config.Config) error {
	if cli.Publish.Brokers != "" {
		cfg.Ingest.Brokers = cli.Publish.Brokers
	}
	if cli.Publish.Topic != "" {
		cfg.Ingest.Topic = cli.Publish.Topic
	}

	raw, err := os.ReadFile(cli.Publish.Input)
	if err != nil {
		return err
	}
	entries, err := parseCollection(raw)
	if err != nil {
		return err
	}
	events, err := toEvents(entries, cli.Publish.Seq, time.Now())
	if err != nil {
		return err
	}

	p, err := kafkaproducer.New(kafkaconsumer.FromConfig(cfg.Ingest).Brokers, cfg.Ingest.Topic)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	if err := p.PublishAll(events); err != nil {
		return err
	}
	fmt.Printf("published %s events to %s\n", humanize.Comma(int64(len(events))), cfg.Ingest.Topic)
	return nil
}

func del(ctx context.Context, store geometrystore.Store) error {
	key, err := elementKey(cli.Delete.Type, cli.Delete.ID)
	if err != nil {
		return err
	}
	deleted, err := store.Delete(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("no geometry stored for %s", key)
	}
	fmt.Printf("deleted %s\n", key)
	return nil
}
