package asset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/normanking/avatarsync/internal/rig"
	"github.com/qmuntal/gltf"
)

// LoadClips reads every animation in a glTF/GLB file. Unlike Load it accepts
// files without meshes, such as exported animation libraries.
func LoadClips(path string) ([]*rig.Clip, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load clips %s: %w: %w", path, ErrLoadFailure, err)
	}
	clips := make([]*rig.Clip, 0, len(doc.Animations))
	for i, a := range doc.Animations {
		clips = append(clips, clip(doc, i, a))
	}
	return clips, nil
}

// ExpressionName is the clip name an expression file registers under.
func ExpressionName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadExpressions loads the first animation of each file, retargets it onto
// the character's skeleton and appends it to Talking or Standing. Talking
// expressions play once; standing ones loop. Files that fail are skipped and
// reported in the joined error.
func (c *Character) LoadExpressions(talking, standing []string) error {
	t, errTalking := c.retargetAll(talking, false)
	st, errStanding := c.retargetAll(standing, true)
	c.Talking = append(c.Talking, t...)
	c.Standing = append(c.Standing, st...)
	return errors.Join(errTalking, errStanding)
}

func (c *Character) retargetAll(paths []string, loop bool) ([]*rig.Clip, error) {
	var out []*rig.Clip
	var errs []error
	for _, path := range paths {
		clips, err := LoadClips(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(clips) == 0 {
			errs = append(errs, fmt.Errorf("expression %s: no animation found", path))
			continue
		}
		retargeted, err := rig.Retarget(clips[0], c.Skeleton, ExpressionName(path))
		if err != nil {
			errs = append(errs, fmt.Errorf("expression %s: %w", path, err))
			continue
		}
		retargeted.Loop = loop
		out = append(out, retargeted)
	}
	return out, errors.Join(errs...)
}

// ExpressionNames lists clip names in order.
func ExpressionNames(clips []*rig.Clip) []string {
	names := make([]string, len(clips))
	for i, c := range clips {
		names[i] = c.Name()
	}
	return names
}
