// Package repo knows the layout of a yum repository inside the object store:
// which keys are packages, which are index metadata, and how a listing
// splits into the two.
package repo

import (
	"path"
	"strings"

	"github.com/nytimes/s3yum/internal/store"
)

// MetadataDir is the directory createrepo writes the index into.
const MetadataDir = "repodata"

// PackageExtension identifies package artifacts.
const PackageExtension = ".rpm"

// IsPackage returns true if the key or path names an RPM.
func IsPackage(name string) bool {
	return strings.HasSuffix(name, PackageExtension)
}

// MetadataPrefix returns the key prefix holding repodata for a repo rooted at repoPath.
func MetadataPrefix(repoPath string) string {
	return store.Join(repoPath, MetadataDir)
}

// IsMetadata returns true if key lives under the repo's metadata prefix.
// Folder markers are never metadata.
func IsMetadata(repoPath, key string) bool {
	if store.IsFolderMarker(key) {
		return false
	}
	return strings.HasPrefix(key, MetadataPrefix(repoPath))
}

// Snapshot is the state of a repo at the start of a run.
type Snapshot struct {
	Path     string
	Metadata []store.ObjectInfo
	Packages []store.ObjectInfo
}

// Partition splits a listing into metadata and package objects. Folder
// markers land in neither; keys that are neither metadata nor packages are
// dropped. Metadata wins if a key could be both.
func Partition(repoPath string, objects []store.ObjectInfo) *Snapshot {
	snap := &Snapshot{Path: repoPath}
	for _, obj := range objects {
		switch {
		case obj.IsFolderMarker():
			continue
		case IsMetadata(repoPath, obj.Key):
			snap.Metadata = append(snap.Metadata, obj)
		case IsPackage(obj.Key):
			snap.Packages = append(snap.Packages, obj)
		}
	}
	return snap
}

// PackagesByName indexes the snapshot's packages by base name.
func (s *Snapshot) PackagesByName() map[string]store.ObjectInfo {
	byName := make(map[string]store.ObjectInfo, len(s.Packages))
	for _, obj := range s.Packages {
		byName[path.Base(obj.Key)] = obj
	}
	return byName
}
