package merge

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// replayNamespace scopes replay keys; changing it would orphan every stored key
var replayNamespace = uuid.MustParse("6f1c8e52-3d0b-4b7e-9a55-2f4c1d9e7a10")

// Key is the content identity used for dedup: Unicode NFKC, case-folded, with runs of
// whitespace collapsed. Rewordings and punctuation differences are distinct keys.
func Key(content string) string {
	s := norm.NFKC.String(content)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// ReplayKey derives a stable key for an item produced from a given fragment, so that a
// retried pass over the same fragments upserts instead of inserting twice.
func ReplayKey(ownerID string, sourceFragmentID *string, key string) string {
	src := ""
	if sourceFragmentID != nil {
		src = *sourceFragmentID
	}
	name := ownerID + "\x00" + src + "\x00" + key
	return uuid.NewSHA1(replayNamespace, []byte(name)).String()
}
