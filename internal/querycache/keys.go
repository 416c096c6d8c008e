package querycache

import "fmt"

// Key is a logical query identity.
type Key string

func CreatorsKey() Key { return "creators" }

func CreatorKey(id int64) Key { return Key(fmt.Sprintf("creators/%d", id)) }

func UsernameKey(username string) Key {
	return Key(fmt.Sprintf("username/%s/availability", username))
}

func TipsForCreatorKey(creatorID int64) Key {
	return Key(fmt.Sprintf("tips/creator/%d", creatorID))
}

func TipTotalKey(creatorID int64) Key {
	return Key(fmt.Sprintf("tips/creator/%d/total", creatorID))
}

func RecentTipsKey() Key { return "tips/recent" }

func HealthKey() Key { return "health" }

// Mutation names a backend write whose effects on queries are declared, not inferred.
type Mutation int

const (
	MutationCreateCreator Mutation = iota + 1
	MutationUpdateCreator
	MutationDeleteCreator
	MutationLinkWallet
	MutationCreateTip
)

func (m Mutation) String() string {
	switch m {
	case MutationCreateCreator:
		return "create creator"
	case MutationUpdateCreator:
		return "update creator"
	case MutationDeleteCreator:
		return "delete creator"
	case MutationLinkWallet:
		return "link wallet"
	case MutationCreateTip:
		return "create tip"
	default:
		return fmt.Sprintf("mutation(%d)", int(m))
	}
}

// invalidations is the static table of which queries each mutation makes
// stale. The id argument is the creator id the mutation targets.
var invalidations = map[Mutation]func(id int64) []Key{
	MutationCreateCreator: func(int64) []Key {
		return []Key{CreatorsKey()}
	},
	MutationUpdateCreator: func(id int64) []Key {
		return []Key{CreatorsKey(), CreatorKey(id)}
	},
	MutationDeleteCreator: func(id int64) []Key {
		return []Key{CreatorsKey(), CreatorKey(id)}
	},
	MutationLinkWallet: func(id int64) []Key {
		return []Key{CreatorKey(id), CreatorsKey()}
	},
	MutationCreateTip: func(id int64) []Key {
		return []Key{TipsForCreatorKey(id), TipTotalKey(id), RecentTipsKey()}
	},
}

// Invalidates returns the keys a successful mutation marks stale.
func Invalidates(m Mutation, id int64) []Key {
	fn, ok := invalidations[m]
	if !ok {
		return nil
	}
	return fn(id)
}
