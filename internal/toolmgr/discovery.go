package toolmgr

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Descriptor is a tool's on-disk install manifest: enough to look up its
// Factory and register it without restarting the process.
type Descriptor struct {
	Name string `yaml:"name"`
}

// Factory constructs a tool's Implementation from its descriptor.
type Factory func(d Descriptor) (Implementation, error)

// Discovery watches an install directory for tool descriptor files
// (name.yaml) and registers/unregisters tools as files appear and vanish.
type Discovery struct {
	registry  *Registry
	dir       string
	factories map[string]Factory
	producer  ThoughtProducer
	logger    *slog.Logger
}

// NewDiscovery creates a Discovery bound to dir, using factories to
// construct an Implementation for a descriptor by name.
func NewDiscovery(registry *Registry, dir string, factories map[string]Factory, producer ThoughtProducer, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{
		registry:  registry,
		dir:       dir,
		factories: factories,
		producer:  producer,
		logger:    logger,
	}
}

// ScanOnce registers every descriptor currently present in the install
// directory. Intended for startup, before the watch loop takes over.
func (d *Discovery) ScanOnce(ctx context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() || !isDescriptor(ent.Name()) {
			continue
		}
		d.registerFromFile(ctx, filepath.Join(d.dir, ent.Name()))
	}
	return nil
}

// Watch runs until ctx is cancelled, registering/unregistering tools as
// descriptor files are created or removed in the install directory.
func (d *Discovery) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(d.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			d.handleEvent(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("tool discovery watch error", "error", err)
		}
	}
}

func (d *Discovery) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !isDescriptor(ev.Name) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		d.registerFromFile(ctx, ev.Name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		name := descriptorToolName(ev.Name)
		if err := d.registry.Unregister(ctx, name); err != nil {
			d.logger.Warn("tool discovery unregister failed", "tool", name, "error", err)
		}
	}
}

func (d *Discovery) registerFromFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warn("tool discovery read failed", "path", path, "error", err)
		return
	}
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		d.logger.Warn("tool discovery descriptor invalid", "path", path, "error", err)
		return
	}
	if desc.Name == "" {
		desc.Name = descriptorToolName(path)
	}

	factory, ok := d.factories[desc.Name]
	if !ok {
		d.logger.Warn("tool discovery: no factory registered", "tool", desc.Name)
		return
	}
	impl, err := factory(desc)
	if err != nil {
		d.logger.Warn("tool discovery: factory failed", "tool", desc.Name, "error", err)
		return
	}
	if err := d.registry.Register(ctx, Tool{Name: desc.Name, Impl: impl}, d.producer); err != nil {
		d.logger.Warn("tool discovery: register failed", "tool", desc.Name, "error", err)
	}
}

func isDescriptor(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func descriptorToolName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
