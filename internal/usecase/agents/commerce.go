package agents

import (
	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
)

var commerceRules = []Rule{
	{
		Intent:     "resource_allocation",
		Capability: "xiaoke.medical_resource.allocate",
		Keywords:   []string{"医生", "医院", "挂号", "预约", "专家", "门诊", "doctor", "appointment"},
		Reply:      "已为您匹配附近可预约的中医师与门诊资源。",
	},
	{
		Intent:     "product_recommendation",
		Capability: "xiaoke.product.recommend",
		Keywords:   []string{"推荐", "产品", "购买", "商品", "药材", "保健品", "product"},
		Reply:      "根据您的需求筛选了合适的健康产品。",
	},
	{
		Intent:     "treatment_planning",
		Capability: "xiaoke.treatment_plan.generate",
		Keywords:   []string{"治疗", "疗程", "针灸", "推拿", "艾灸", "理疗", "treatment"},
		Reply:      "已生成可执行的治疗服务方案。",
	},
	{
		Intent:     "food_therapy",
		Capability: "xiaoke.food_therapy.design",
		Keywords:   []string{"食疗", "药膳", "食谱", "养生茶"},
		Reply:      "已为您设计个性化药膳与食疗方案。",
	},
}

var commerceFallback = Rule{
	Intent:     "service_inquiry",
	Capability: "xiaoke.service.inquiry",
	Reply:      "我是小克，可以帮您预约医生、推荐产品或安排调理服务。",
}

// NewCommerce builds the xiaoke agent: services, products and appointments.
func NewCommerce(opts domain.AgentOptions) (domain.Agent, error) {
	return newLifecycle(domain.AgentCommerce, opts,
		NewClassifier(commerceRules, commerceFallback), respondCommerce), nil
}

func respondCommerce(cls Classification, _ string, rc domain.RequestContext) domain.Payload {
	recommendation := "可在索克生活服务页查看更多选项。"
	switch cls.Intent {
	case "resource_allocation":
		recommendation = "优先预约擅长相关病症的中医师，首诊建议线下面诊。"
	case "product_recommendation":
		recommendation = "选择有资质的正规产品，按说明适量使用。"
	case "treatment_planning":
		recommendation = "按疗程完成理疗，每周复评一次效果。"
	case "food_therapy":
		recommendation = "药膳以温和平补为主，连续食用两周后评估。"
	}

	region, _ := rc.Extension("region")
	return domain.Payload{
		Intent: cls.Intent,
		Reply:  cls.Reply,
		Fields: fields(map[string]string{
			"summary":        cls.Reply,
			"recommendation": recommendation,
			"region":         region,
			"prior":          priorSummary(rc),
		}),
	}
}
