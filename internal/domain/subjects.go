package domain

// Формирующие поля Nueva Escuela Mexicana плюс значение по умолчанию для чата.
const (
	SubjectGeneral   = "General"
	SubjectLenguajes = "Lenguajes"
	SubjectSaberes   = "Saberes y Pensamiento Científico"
	SubjectEtica     = "Ética, Naturaleza y Sociedades"
	SubjectHumano    = "De lo Humano y lo Comunitario"
)

// Subjects формирующие поля, допустимые для заданий и расписаний.
var Subjects = []string{SubjectLenguajes, SubjectSaberes, SubjectEtica, SubjectHumano}

// ValidSubject сообщает, относится ли строка к известному формирующему полю.
func ValidSubject(s string) bool {
	for _, known := range Subjects {
		if s == known {
			return true
		}
	}
	return false
}
