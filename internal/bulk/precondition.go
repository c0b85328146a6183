package bulk

import "medialib/internal/models"

// CheckMove verifies that moving the selected folders under target keeps the
// tree acyclic. ancestors is target's ancestor chain (nearest parent first).
// It reads nothing but its arguments, so it can run before any mutation.
func CheckMove(selectedFolders []string, target string, ancestors []models.Folder) error {
	selected := make(map[string]struct{}, len(selectedFolders))
	for _, id := range selectedFolders {
		selected[id] = struct{}{}
	}

	if _, ok := selected[target]; ok {
		return &CycleError{FolderID: target, TargetID: target}
	}
	for _, ancestor := range ancestors {
		if _, ok := selected[ancestor.ID]; ok {
			return &CycleError{FolderID: ancestor.ID, TargetID: target}
		}
	}
	return nil
}
