package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"autobackup/internal/content"
	"autobackup/internal/model"
)

// DiscoveredFile is a file whose fingerprint the Scanner had not seen before.
type DiscoveredFile struct {
	Path        string
	Name        string
	Folder      string // the monitored folder it was found under
	SizeBytes   int64
	ModifiedAt  time.Time
	Fingerprint string
	Kind        model.FileKind

	// origin replaces Path as the recorded original path when set.
	origin string
}

// OriginalPath is the path recorded in the catalog for the file.
func (d *DiscoveredFile) OriginalPath() string {
	if d.origin != "" {
		return d.origin
	}
	return d.Path
}

// ScanResult is the outcome of one DiscoverNew call.
type ScanResult struct {
	Files          []*DiscoveredFile
	MissingFolders []string
	// Errors holds per-folder and per-file problems that were skipped.
	Errors []error
}

// Scanner walks monitored folders and yields files not yet in the
// membership set. A file is identified by content only: renaming or moving
// a processed file never makes it new again.
type Scanner struct {
	fsmgr      FilesystemManager
	membership MembershipSet
	logger     Logger
}

// NewScanner creates a Scanner.
func NewScanner(fsmgr FilesystemManager, membership MembershipSet, logger Logger) *Scanner {
	return &Scanner{
		fsmgr:      fsmgr,
		membership: membership,
		logger:     logger,
	}
}

// DiscoverNew walks every folder recursively and returns the files whose
// extension is allowed and whose fingerprint is new. Each new fingerprint is
// added to the membership set as soon as it is computed; the set is flushed
// when the scan ends, also when ctx is cancelled.
//
// Missing or unreadable folders are skipped with a warning. The returned
// error is non-nil only for cancellation or a failure to persist the set;
// the result is usable in both cases.
func (s *Scanner) DiscoverNew(ctx context.Context, folders []string, allowed ExtensionSet) (result *ScanResult, err error) {
	result = &ScanResult{}

	defer func() {
		if flushErr := s.membership.Flush(); flushErr != nil {
			s.logger.Error("persisting membership set failed", "error", flushErr)
			if err == nil {
				err = fmt.Errorf("persisting membership set: %w", flushErr)
			}
		}
	}()

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		info, statErr := s.fsmgr.Stat(folder)
		if statErr != nil {
			if errors.Is(statErr, fs.ErrNotExist) {
				s.logger.Warn("monitored folder does not exist", "folder", folder)
				result.MissingFolders = append(result.MissingFolders, folder)
			} else {
				s.logger.Warn("monitored folder not accessible", "folder", folder, "error", statErr)
				result.Errors = append(result.Errors, fmt.Errorf("folder %s: %w", folder, statErr))
			}
			continue
		}
		if !info.IsDir() {
			s.logger.Warn("monitored folder is not a directory", "folder", folder)
			result.Errors = append(result.Errors, fmt.Errorf("folder %s: not a directory", folder))
			continue
		}

		if err := s.scanFolder(ctx, folder, allowed, result); err != nil {
			return result, err
		}
	}

	s.logger.Info("scan complete",
		"folders", len(folders),
		"new", len(result.Files),
		"missing", len(result.MissingFolders),
		"known", s.membership.Len(),
	)
	return result, nil
}

// scanFolder discovers new files under one folder. It returns an error only
// when ctx is cancelled.
func (s *Scanner) scanFolder(ctx context.Context, folder string, allowed ExtensionSet, result *ScanResult) error {
	files, err := s.fsmgr.FindFiles(ctx, folder)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("walking folder failed", "folder", folder, "error", err)
		result.Errors = append(result.Errors, fmt.Errorf("folder %s: %w", folder, err))
		return nil
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !allowed.Allows(f.String()) {
			continue
		}

		fingerprint, size, err := fingerprintPath(s.fsmgr, f)
		if err != nil {
			s.logger.Warn("fingerprinting failed", "path", f.String(), "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("file %s: %w", f.String(), err))
			continue
		}

		if !s.membership.Add(fingerprint) {
			continue
		}

		var modTime time.Time
		if info := f.Info(); info != nil {
			modTime = info.ModTime()
		}
		result.Files = append(result.Files, &DiscoveredFile{
			Path:        f.String(),
			Name:        filepath.Base(f.String()),
			Folder:      folder,
			SizeBytes:   size,
			ModifiedAt:  modTime,
			Fingerprint: fingerprint,
			Kind:        model.KindForName(f.String()),
		})
		s.logger.Debug("new file discovered", "path", f.String(), "fingerprint", fingerprint)
	}

	return nil
}

// fingerprintPath streams a file through the content identifier.
func fingerprintPath(fsmgr FilesystemManager, p *Path) (string, int64, error) {
	r, err := fsmgr.Open(p)
	if err != nil {
		return "", 0, fmt.Errorf("opening file: %w", err)
	}
	defer r.Close()
	return content.Fingerprint(r)
}
