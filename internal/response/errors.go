package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrSessionActive ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrUnknownAction  ErrCode = "UNKNOWN_ACTION"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrWrongPhase         ErrCode = "WRONG_PHASE"
	ErrCameraNotReady     ErrCode = "CAMERA_NOT_READY"
	ErrAnswerRequired     ErrCode = "ANSWER_REQUIRED"
	ErrNoPreviousQuestion ErrCode = "NO_PREVIOUS_QUESTION"
	ErrIndexOutOfRange    ErrCode = "INDEX_OUT_OF_RANGE"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrSessionActive:
		return "Ujian ini sudah dibuka di perangkat atau tab lain."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."
	case ErrUnknownAction:
		return "Aksi tidak dikenal."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrWrongPhase:
		return "Aksi ini tidak dapat dilakukan pada tahap ujian saat ini."
	case ErrCameraNotReady:
		return "Kamera belum siap. Izinkan akses kamera untuk memulai ujian."
	case ErrAnswerRequired:
		return "Jawab soal ini terlebih dahulu."
	case ErrNoPreviousQuestion:
		return "Ini adalah soal pertama."
	case ErrIndexOutOfRange:
		return "Nomor soal tidak valid."
	case ErrInvalidAnswer:
		return "Jawaban tidak valid untuk soal ini."
	case ErrUnknownQuestion:
		return "Soal tidak ditemukan dalam ujian ini."
	case ErrSessionClosed:
		return "Sesi ujian sudah ditutup."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
