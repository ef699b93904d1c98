package domain

import "fmt"

// RefKind enumerates the shapes a PostReference can take.
type RefKind int

const (
	RefInvalid RefKind = iota
	RefPostByID
	RefShortCode
	RefCommunityOnly
)

func (k RefKind) String() string {
	switch k {
	case RefPostByID:
		return "post"
	case RefShortCode:
		return "share"
	case RefCommunityOnly:
		return "community"
	default:
		return "invalid"
	}
}

// PostReference is the parsed identity of an arbitrary post reference string.
//
// RefPostByID carries ID and, when the input named it, Community.
// RefShortCode carries Community and Code and must be resolved before retrieval.
// RefCommunityOnly carries Community. RefInvalid carries only Raw.
type PostReference struct {
	Kind      RefKind
	Community string
	ID        string
	Code      string
	Raw       string
}

func PostByID(community, id string) PostReference {
	return PostReference{Kind: RefPostByID, Community: community, ID: id}
}

func PostByShortCode(community, code string) PostReference {
	return PostReference{Kind: RefShortCode, Community: community, Code: code}
}

func CommunityOnly(community string) PostReference {
	return PostReference{Kind: RefCommunityOnly, Community: community}
}

func Invalid(raw string) PostReference {
	return PostReference{Kind: RefInvalid, Raw: raw}
}

// URL returns the canonical reddit.com location of the reference.
func (r PostReference) URL() string {
	switch r.Kind {
	case RefPostByID:
		if r.Community == "" {
			return fmt.Sprintf("https://www.reddit.com/comments/%s/", r.ID)
		}
		return fmt.Sprintf("https://www.reddit.com/r/%s/comments/%s/", r.Community, r.ID)
	case RefShortCode:
		return fmt.Sprintf("https://www.reddit.com/r/%s/s/%s", r.Community, r.Code)
	case RefCommunityOnly:
		return fmt.Sprintf("https://www.reddit.com/r/%s/", r.Community)
	default:
		return r.Raw
	}
}

func (r PostReference) String() string {
	return r.Kind.String() + ":" + r.URL()
}
