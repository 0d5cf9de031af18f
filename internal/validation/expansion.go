package validation

import "strings"

const (
	referenceOperator = '$'
	referenceOpener   = '('
	referenceCloser   = ')'
)

// unresolvedReferences returns the names of $(NAME) references in value that
// are not in defined. "$$" escapes a literal "$"; unterminated or empty
// references are literal text, matching how the kubelet expands env values.
func unresolvedReferences(value string, defined map[string]bool) []string {
	var unresolved []string

	for idx := 0; idx < len(value)-1; idx++ {
		if value[idx] != referenceOperator {
			continue
		}

		switch value[idx+1] {
		case referenceOperator:
			idx++
		case referenceOpener:
			end := strings.IndexByte(value[idx+2:], referenceCloser)
			if end < 0 {
				return unresolved
			}

			name := value[idx+2 : idx+2+end]
			if name != "" && !defined[name] {
				unresolved = append(unresolved, name)
			}

			idx += 2 + end
		}
	}

	return unresolved
}
