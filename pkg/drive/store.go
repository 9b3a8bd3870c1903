// Package drive stores backup files in a Google Drive folder.
package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	backupdomain "github.com/Retr0-XD/FInance-Monkey/internal/backup/domain"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	DefaultFolder = "FinanceMonkey_Transactions"
	folderMime    = "application/vnd.google-apps.folder"
	jsonMime      = "application/json"
)

var _ backupdomain.Store = (*Store)(nil)

type Store struct {
	svc        *drive.Service
	folderName string

	mu       sync.Mutex
	folderID string
}

// NewStore authenticates with a service account key file and uses folderName for all files
func NewStore(ctx context.Context, credentialsFile, folderName string) (*Store, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	if folderName == "" {
		folderName = DefaultFolder
	}
	return &Store{svc: svc, folderName: folderName}, nil
}

// folder finds or creates the backup folder and caches its id
func (s *Store) folder(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.folderID != "" {
		return s.folderID, nil
	}

	q := fmt.Sprintf("mimeType='%s' and name='%s' and trashed=false", folderMime, escape(s.folderName))
	list, err := s.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("find folder %s: %w", s.folderName, err)
	}
	if len(list.Files) > 0 {
		s.folderID = list.Files[0].Id
		return s.folderID, nil
	}

	created, err := s.svc.Files.Create(&drive.File{Name: s.folderName, MimeType: folderMime}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", s.folderName, err)
	}
	s.folderID = created.Id
	return s.folderID, nil
}

func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	parent, err := s.folder(ctx)
	if err != nil {
		return err
	}
	file := &drive.File{Name: name, MimeType: jsonMime, Parents: []string{parent}}
	_, err = s.svc.Files.Create(file).Media(bytes.NewReader(data)).Fields("id").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, prefix string) (string, []byte, error) {
	parent, err := s.folder(ctx)
	if err != nil {
		return "", nil, err
	}

	q := fmt.Sprintf("'%s' in parents and name contains '%s' and mimeType='%s' and trashed=false", parent, escape(prefix), jsonMime)
	list, err := s.svc.Files.List().Q(q).OrderBy("createdTime desc").Fields("files(id,name)").PageSize(10).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("list backups: %w", err)
	}

	// "contains" also matches mid-name, keep only true prefixes
	for _, f := range list.Files {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		resp, err := s.svc.Files.Get(f.Id).Context(ctx).Download()
		if err != nil {
			return "", nil, fmt.Errorf("download %s: %w", f.Name, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return f.Name, data, nil
	}
	return "", nil, nil
}

// escape quotes a value for a Drive query string literal
func escape(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
