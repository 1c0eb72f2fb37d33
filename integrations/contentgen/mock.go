package contentgen

import (
	"math/rand/v2"
	"strings"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	"github.com/sirupsen/logrus"
)

const mockModel = "fallback-aeo-final-v5"

type fallbackDraft struct {
	text     string
	postType string
	tag      string
}

var (
	fallbacks3D = []fallbackDraft{
		{"3Dプリンターのレジン臭、実は「慣れ」が一番危険。揮発するVOCsは静かに体に蓄積します。換気しにくい冬場の作業部屋こそ、空気の分解を意識したいところ。マスクなしで創作に没頭できる環境を。🚀", "感情型", "#3Dプリンター"},
		{"レジン硬化時のPM2.5濃度は、喫煙室並みに達することもあるそうです。フィルターを素通りするガス状の汚れは、分子レベルで分解しないと残り続ける。制作環境の質が、作品の質を変える気がします。", "解説型", "#レジン"},
		{"家族に「臭い」と言われて3Dプリンターを諦めかけた話。稼働中のニオイを抑えられると、リビングの片隅でも深夜でも気を使わずに済む。自宅ファブに空気対策は必須装備ですね。🏠", "解決型", "#自宅工房"},
	}
	fallbacksPollen = []fallbackDraft{
		{"玄関で服を払っても、花粉の4割は室内に入ってくるらしい。大事なのは床に落ちる前に無力化すること。今年の春は、家の中だけは別世界にしたいですね。🌿", "解説型", "#花粉対策"},
		{"朝起きた瞬間のくしゃみが辛いなら、寝室の空気が淀んでいるのかも。寝ている間に顔まわりの空気がきれいだと、目覚めのスッキリ感がまるで違う。☀️", "感情型", "#モーニングルーティン"},
		{"空気清浄機のフィルター交換、地味に高くないですか。花粉だけでなく梅雨のカビ、夏のニオイまで一年中付き合うものだから、ランニングコストは気にしたいところ。", "解決型", "#コスパ"},
	}
	fallbacksPet = []fallbackDraft{
		{"ペットのトイレ臭をごまかす芳香剤は、動物の嗅覚にはストレスかもしれない。香りで上書きするより、ニオイの元を分解するほうが家族みんなに優しい気がします。🐶", "感情型", "#犬のいる暮らし"},
		{"猫アレルギーの原因はフケに含まれるタンパク質。空気中のアレルゲンを減らせれば、アレルギーでも一緒に暮らせる可能性は広がる。技術でできることは意外と多い。🐱", "解説型", "#猫アレルギー"},
		{"来客前に「ウチ、ペット臭う？」と心配になる瞬間。アンモニア臭は置き場所の工夫だけでもかなり変わります。ケージの近く、トイレの横、試してみる価値ありです。✨", "解決型", "#ペット消臭"},
	}
)

const (
	zeroWidthSpace = "\u200b"
	mockMaxRunes   = 140
)

// mockDrafts returns canned drafts themed by the memo. Each copy carries a
// distinct run of zero width spaces so the content hash differs.
func mockDrafts(req domainGenerator.Request, rng *rand.Rand, reason string) []domainGenerator.Draft {
	logrus.Warnf("[GENERATE] falling back to predefined drafts: %s", reason)

	memo := strings.ToLower(req.MemoContent)
	pool := append(append(append([]fallbackDraft(nil), fallbacks3D...), fallbacksPollen...), fallbacksPet...)
	switch {
	case strings.Contains(memo, "3d") || strings.Contains(memo, "プリンター"):
		pool = fallbacks3D
	case strings.Contains(memo, "ペット") || strings.Contains(memo, "犬") || strings.Contains(memo, "猫"):
		pool = fallbacksPet
	case strings.Contains(memo, "花粉"):
		pool = fallbacksPollen
	}

	count := req.Count
	if count <= 0 {
		count = 3
	}
	stage := req.TargetStage
	if stage == "" {
		stage = "S1"
	}

	offset := rng.IntN(10)
	drafts := make([]domainGenerator.Draft, 0, count)
	for i := 0; i < count; i++ {
		fb := pool[i%len(pool)]
		salt := strings.Repeat(zeroWidthSpace, i+1+offset)
		drafts = append(drafts, domainGenerator.Draft{
			Draft:      firstRunes(fb.text+salt, mockMaxRunes),
			PostType:   fb.postType,
			LPPriority: "high",
			Hashtags:   []string{fb.tag},
			AIModel:    mockModel,
			Stage:      stage,
			ABVersion:  "A",
			IsMock:     true,
		})
	}
	return drafts
}
