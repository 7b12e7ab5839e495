// Package session keeps timestamped model snapshots in project folders.
package session

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/ftag"

	"go-midimodel/debug"
	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/state"
)

const timestampLayout = "2006-01-02_15-04-05"

var now = time.Now

// SaveInfo represents a saved snapshot (for listing)
type SaveInfo struct {
	Filename  string
	Name      string // parsed from filename (empty if unnamed)
	Timestamp time.Time
}

// ProjectsDir returns the projects directory path
func ProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", seqerr.Wrap(err, "find home directory")
	}
	return filepath.Join(home, ".config", "go-midimodel", "projects"), nil
}

// ProjectDir returns the path to a specific project
func ProjectDir(projectName string) (string, error) {
	base, err := ProjectsDir()
	if err != nil {
		return "", err
	}
	if projectName == "" || projectName != sanitizeFilename(projectName) || projectName == ".." {
		return "", seqerr.ContractViolation("invalid project name %q", projectName)
	}
	return filepath.Join(base, projectName), nil
}

// ListProjects returns all project folder names
func ListProjects() ([]string, error) {
	dir, err := ProjectsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, seqerr.Wrap(err, "list projects")
	}

	projects := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}

	slices.Sort(projects)
	return projects, nil
}

// parseSave splits 2024-01-15_14-30-00.json or 2024-01-15_14-30-00_name.json
func parseSave(filename string) (SaveInfo, bool) {
	baseName, ok := strings.CutSuffix(filename, ".json")
	if !ok || len(baseName) < len(timestampLayout) {
		return SaveInfo{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, baseName[:len(timestampLayout)], time.Local)
	if err != nil {
		return SaveInfo{}, false
	}
	info := SaveInfo{Filename: filename, Timestamp: ts}
	if rest := baseName[len(timestampLayout):]; rest != "" {
		if rest[0] != '_' {
			return SaveInfo{}, false
		}
		info.Name = rest[1:]
	}
	return info, true
}

// ListSaves returns timestamped saves for a project, newest first
func ListSaves(projectName string) ([]SaveInfo, error) {
	dir, err := ProjectDir(projectName)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, seqerr.Wrap(err, "list saves in "+projectName)
	}

	saves := []SaveInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// Files without a timestamp are not ours
		if info, ok := parseSave(entry.Name()); ok {
			saves = append(saves, info)
		}
	}

	// Newest first, then by name so equal timestamps list stably
	slices.SortFunc(saves, func(a, b SaveInfo) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Filename, b.Filename)
	})
	return saves, nil
}

func saveFilename(ts time.Time, name string) string {
	stamp := ts.Format(timestampLayout)
	if name == "" {
		return stamp + ".json"
	}
	return stamp + "_" + sanitizeFilename(name) + ".json"
}

// SaveModel writes m's state into the project under a new timestamped file
// and returns the file name.
func SaveModel(projectName, name string, m *model.Model) (string, error) {
	if projectName == "" {
		projectName = "untitled"
	}

	dir, err := ProjectDir(projectName)
	if err != nil {
		return "", err
	}

	// Create project directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", seqerr.Wrap(err, "create project "+projectName)
	}

	data, err := state.Marshal(m.GetState())
	if err != nil {
		return "", err
	}

	filename := saveFilename(now(), name)
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", seqerr.Wrap(err, "write "+filename)
	}

	r := m.ReadLock()
	notes := r.NoteCount()
	r.Release()
	debug.For("session").Info("saved model", "project", projectName, "file", filename, "notes", notes)
	return filename, nil
}

// LoadModel replaces m's contents with a save (or the most recent if
// filename is empty).
func LoadModel(projectName, filename string, m *model.Model) (SaveInfo, error) {
	dir, err := ProjectDir(projectName)
	if err != nil {
		return SaveInfo{}, err
	}

	if filename == "" {
		saves, err := ListSaves(projectName)
		if err != nil {
			return SaveInfo{}, err
		}
		if len(saves) == 0 {
			return SaveInfo{}, fault.New("no saves found in project "+projectName, ftag.With(ftag.NotFound))
		}
		filename = saves[0].Filename
	}

	info, ok := parseSave(filename)
	if !ok || filename != filepath.Base(filename) {
		return SaveInfo{}, seqerr.ContractViolation("invalid save filename %q", filename)
	}

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return SaveInfo{}, fault.Wrap(err, ftag.With(ftag.NotFound))
		}
		return SaveInfo{}, seqerr.Wrap(err, "read "+filename)
	}

	root, err := state.Unmarshal(data)
	if err != nil {
		return SaveInfo{}, err
	}
	if err := m.SetState(root); err != nil {
		return SaveInfo{}, err
	}
	m.SetEdited(false)

	debug.Log("session", "loaded %s/%s", projectName, filename)
	return info, nil
}

// CreateProject creates a new empty project folder
func CreateProject(name string) error {
	dir, err := ProjectDir(name)
	if err != nil {
		return err
	}
	return seqerr.Wrap(os.MkdirAll(dir, 0755), "create project "+name)
}

// DeleteSave deletes a specific save file
func DeleteSave(projectName, filename string) error {
	dir, err := ProjectDir(projectName)
	if err != nil {
		return err
	}
	if _, ok := parseSave(filename); !ok || filename != filepath.Base(filename) {
		return seqerr.ContractViolation("invalid save filename %q", filename)
	}
	return seqerr.Wrap(os.Remove(filepath.Join(dir, filename)), "delete "+filename)
}

// RenameSave renames a save file (changes the name part, keeps timestamp)
// and returns the new file name.
func RenameSave(projectName, oldFilename, newName string) (string, error) {
	dir, err := ProjectDir(projectName)
	if err != nil {
		return "", err
	}

	info, ok := parseSave(oldFilename)
	if !ok || oldFilename != filepath.Base(oldFilename) {
		return "", seqerr.ContractViolation("invalid save filename %q", oldFilename)
	}

	newFilename := saveFilename(info.Timestamp, newName)
	oldPath := filepath.Join(dir, oldFilename)
	newPath := filepath.Join(dir, newFilename)
	if err := os.Rename(oldPath, newPath); err != nil {
		return "", seqerr.Wrap(err, "rename "+oldFilename)
	}
	return newFilename, nil
}

var filenameReplacer = strings.NewReplacer(
	" ", "-", "/", "-", "\\", "-", ":", "-",
	"*", "", "?", "", "\"", "", "<", "", ">", "", "|", "",
)

// sanitizeFilename removes/replaces characters that are problematic in filenames
func sanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}

// DeleteProject deletes entire project folder
func DeleteProject(name string) error {
	dir, err := ProjectDir(name)
	if err != nil {
		return err
	}
	return seqerr.Wrap(os.RemoveAll(dir), "delete project "+name)
}

// RenameProject renames a project folder
func RenameProject(oldName, newName string) error {
	oldDir, err := ProjectDir(oldName)
	if err != nil {
		return err
	}

	newDir, err := ProjectDir(newName)
	if err != nil {
		return err
	}

	if _, err := os.Stat(newDir); err == nil {
		return seqerr.ContractViolation("project %s already exists", newName)
	}
	return seqerr.Wrap(os.Rename(oldDir, newDir), "rename project "+oldName)
}
