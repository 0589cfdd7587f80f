package agents

import (
	"strings"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

var diagnosticRules = []Rule{
	{
		Intent:     "symptom_analysis",
		Capability: "xiaoai.symptom.analyze",
		Keywords:   []string{"头痛", "头晕", "发烧", "咳嗽", "失眠", "乏力", "疼", "痛", "不舒服", "症状", "headache", "fever", "cough"},
		Reply:      "根据您描述的症状，初步判断需要结合舌象与脉象进一步辨证。",
	},
	{
		Intent:     "constitution_assessment",
		Capability: "xiaoai.constitution.assess",
		Keywords:   []string{"体质", "气虚", "阳虚", "阴虚", "湿热", "痰湿", "血瘀", "气郁", "constitution"},
		Reply:      "已根据中医九种体质理论为您完成体质评估。",
	},
	{
		Intent:     "four_diagnosis",
		Capability: "xiaoai.tcm.four_diagnosis",
		Keywords:   []string{"舌", "脉", "面色", "望诊", "闻诊", "问诊", "切诊", "四诊"},
		Reply:      "已整合望闻问切四诊信息，生成辨证参考。",
	},
	{
		Intent:     "emergency_triage",
		Capability: "xiaoai.triage.assess",
		Keywords:   []string{"急救", "胸痛", "昏迷", "呼吸困难", "大出血", "emergency"},
		Reply:      "症状可能危急，请立即拨打急救电话或前往最近的急诊。",
	},
}

var diagnosticFallback = Rule{
	Intent:     "health_inquiry",
	Capability: "xiaoai.health.inquiry",
	Reply:      "我是小艾，请描述您的不适或健康问题，我会为您进行初步分析。",
}

// syndromeHints maps matched vocabulary to a coarse TCM pattern.
var syndromeHints = map[string]string{
	"失眠": "心脾两虚",
	"乏力": "气虚",
	"头晕": "肝阳上亢",
	"咳嗽": "肺气失宣",
	"发烧": "外感风热",
	"湿热": "湿热内蕴",
	"痰湿": "痰湿阻滞",
	"阳虚": "阳气不足",
	"阴虚": "阴液亏虚",
}

// NewDiagnostic builds the xiaoai agent: health inquiry and TCM-style
// syndrome differentiation.
func NewDiagnostic(opts domain.AgentOptions) (domain.Agent, error) {
	return newLifecycle(domain.AgentDiagnostic, opts,
		NewClassifier(diagnosticRules, diagnosticFallback), respondDiagnostic), nil
}

func respondDiagnostic(cls Classification, _ string, rc domain.RequestContext) domain.Payload {
	var patterns []string
	for _, kw := range cls.Matched {
		if p, ok := syndromeHints[kw]; ok {
			patterns = append(patterns, p)
		}
	}
	recommendation := "保持规律作息，如症状持续请及时就医。"
	switch {
	case cls.Intent == "emergency_triage":
		recommendation = "立即就医，不要等待线上建议。"
	case len(patterns) > 0:
		recommendation = "建议针对" + patterns[0] + "进行调理，并由医师复诊确认。"
	}
	return domain.Payload{
		Intent: cls.Intent,
		Reply:  cls.Reply,
		Fields: fields(map[string]string{
			"summary":        cls.Reply,
			"syndrome":       strings.Join(patterns, "、"),
			"recommendation": recommendation,
			"prior":          priorSummary(rc),
		}),
	}
}
