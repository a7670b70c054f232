package domain

// Rubric 是项目内嵌的加权评分模板。
type Rubric struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Criteria    []Criterion `json:"criteria"`
}

// Criterion 描述一个评分维度。Weight 取值 [0,1]，MaxScore 必须为正。
type Criterion struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	MaxScore    int     `json:"max_score"`
}

// EmergencyContact 是申请人资料中的紧急联系人。
type EmergencyContact struct {
	Name         string `json:"name" validate:"required"`
	Relationship string `json:"relationship" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
}

// VolunteerRubric 返回默认的五维志愿者评分模板，新建项目未提供 rubric 时使用。
func VolunteerRubric() Rubric {
	return Rubric{
		ID:          "rubric-volunteer",
		Name:        "Volunteer Program Rubric",
		Description: "Standard rubric for evaluating volunteer applications",
		Criteria: []Criterion{
			{ID: "criterion-1", Name: "Relevant Experience", Description: "Quality and relevance of previous volunteer or healthcare experience", Weight: 0.25, MaxScore: 5},
			{ID: "criterion-2", Name: "Motivation & Commitment", Description: "Demonstrated passion and long-term commitment", Weight: 0.25, MaxScore: 5},
			{ID: "criterion-3", Name: "Skills Alignment", Description: "Match between applicant skills and program needs", Weight: 0.20, MaxScore: 5},
			{ID: "criterion-4", Name: "Communication Skills", Description: "Quality of written responses and clarity", Weight: 0.15, MaxScore: 5},
			{ID: "criterion-5", Name: "Availability", Description: "Schedule flexibility and time commitment", Weight: 0.15, MaxScore: 5},
		},
	}
}
