package models

// Patient 患者（只读，来自患者目录）
type Patient struct {
	ID        string  `json:"id"`
	DisplayID string  `json:"patient_id"`
	Name      string  `json:"name"`
	Age       int     `json:"age"`
	Gender    string  `json:"gender"`
	Phone     string  `json:"phone"`
	Email     *string `json:"email,omitempty"`
}
