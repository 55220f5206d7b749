package ai

// FirstJSONObject возвращает первую сбалансированную подстроку {...} из ответа
// модели. Модели часто оборачивают JSON в прозу или код-блоки, поэтому ответ
// нельзя декодировать напрямую.
func FirstJSONObject(raw string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range raw {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}
