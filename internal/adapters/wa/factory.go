// Package wa backs the MessagingClient port with whatsmeow. Each uid gets
// its own sqlite credential database under the data dir; deleting that
// file is what "forget this uid" means.
package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/dmendiola/wagate/internal/domain"
)

type Factory struct {
	dataDir string
	debugQR bool
}

func NewFactory(dataDir string, debugQR bool) (*Factory, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Factory{
		dataDir: dataDir,
		debugQR: debugQR,
	}, nil
}

func (f *Factory) dbPath(uid domain.UID) string {
	return filepath.Join(f.dataDir, string(uid)+".db")
}

func (f *Factory) New(uid domain.UID, opts domain.ClientOptions) (domain.MessagingClient, error) {
	ctx := context.Background()

	dbLog := waLog.Stdout("Database", "ERROR", true)
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+f.dbPath(uid)+"?_foreign_keys=on", dbLog)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("loading device: %w", err)
	}

	clientLog := waLog.Stdout("Client", "ERROR", true)
	wm := whatsmeow.NewClient(device, clientLog)

	return newClient(uid, wm, container, opts, f.debugQR), nil
}

func (f *Factory) HasCredentials(uid domain.UID) bool {
	_, err := os.Stat(f.dbPath(uid))
	return err == nil
}

// DeleteCredentials removes the uid's sqlite database and its journal
// sidecar files.
func (f *Factory) DeleteCredentials(uid domain.UID) error {
	base := f.dbPath(uid)
	var firstErr error
	for _, p := range []string{base, base + "-shm", base + "-wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("removing %s: %w", filepath.Base(p), err)
			}
		}
	}
	return firstErr
}

func (f *Factory) KnownUIDs() ([]domain.UID, error) {
	entries, err := os.ReadDir(f.dataDir)
	if err != nil {
		return nil, fmt.Errorf("reading data dir: %w", err)
	}

	var uids []domain.UID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		uids = append(uids, domain.UID(strings.TrimSuffix(name, ".db")))
	}
	return uids, nil
}
