package content

import "strings"

var referenceMarkers = []string{"[", "doi:", "http://", "https://", "@"}

// Classifier assigns content types to the items of one document. It is
// stateful: once a heading mentioning references is seen, citation-like
// items that follow are classified as references.
type Classifier struct {
	inReferences bool
}

func (c *Classifier) Classify(item RawItem) ContentType {
	if item.Type == "image" {
		return TypeImage
	}

	text := strings.ToLower(item.Text)

	if strings.Contains(text, "abstract") {
		return TypeAbstract
	}
	if strings.Contains(text, "reference") {
		c.inReferences = true
	}
	if c.inReferences {
		for _, m := range referenceMarkers {
			if strings.Contains(text, m) {
				return TypeReference
			}
		}
	}
	if item.TextLevel == 1 {
		return TypeTitle
	}
	return TypeBody
}

func (c *Classifier) Reset() {
	c.inReferences = false
}
