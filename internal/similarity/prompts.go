package similarity

import "fmt"

// The prompts ask for strict JSON and weight the component scores into
// final_score with fixed formulas, so two runs over the same flow land in
// the same band even when the reasons differ.

func keywordToAdPrompt(keyword, adText string) string {
	return fmt.Sprintf(`Score ad relevance to keyword. Judge meaning, not keyword stuffing. Penalize deceptive content.

KEYWORD: %q
AD: %q

**Intent:** TRANSACTIONAL (buy/hire) | NAVIGATIONAL (brand+site) | INFORMATIONAL (how/what) | COMPARISON (best/vs)

**Penalties:**
- Brand mismatch: keyword has brand, ad doesn't -> keyword_match<=0.3, topic_match<=0.4, intent_match<=0.5
- Wrong product: ad promotes different core product -> topic_match=0.1, final_score<=0.3

**Scores (0.0-1.0):**
KEYWORD_MATCH (15%%): Term overlap | 1.0=all | 0.7=most | 0.4=some | 0.0=none
TOPIC_MATCH (35%%): Same subject? | 1.0=identical | 0.7=close | 0.4=loose | 0.1=unrelated
INTENT_MATCH (50%%): Satisfies intent?
- TRANS: CTA/offer? 1.0=yes | 0.3=no
- NAV: Correct brand? 1.0=yes | 0.1=no
- INFO: Educational? 0.9=yes | 0.3=sales-only
- COMP: Multiple options? 0.9=yes | 0.4=single

**Bands:** 0.8-1.0=excellent | 0.6-0.8=good | 0.4-0.6=moderate | 0.2-0.4=weak | 0.0-0.2=poor

JSON only: {"intent":"","keyword_match":0.0,"topic_match":0.0,"intent_match":0.0,"final_score":0.0,"band":"","reason":""}
**Reason:** Max 125 characters explaining the score.
Formula: 0.15*K + 0.35*T + 0.50*I`, keyword, adText)
}

func adToPagePrompt(adText, pageText string) string {
	return fmt.Sprintf(`Score page vs ad promises. Judge meaning, not keyword stuffing. Penalize deceptive content.

AD: %q
PAGE: %q

**Penalties:**
- Dead page: error/parking/forced redirect to different site/no real content -> ALL=0.0
- Brand hijack: ad brand differs from page brand AND page is affiliate/comparison/different company -> brand_match<=0.2, promise_match<=0.4

**Scores (0.0-1.0):**
TOPIC_MATCH (30%%): Same product/service? | 1.0=exact | 0.7=related | 0.4=loose | 0.1=different
BRAND_MATCH (20%%): Same company? | 1.0=same brand clearly shown | 0.7=same brand, less prominent | 0.2=different company | 0.0=bait-switch
PROMISE_MATCH (50%%): Ad claims delivered on page?
- Check: same service/offer, CTA available, claims verifiable
- 1.0=all delivered | 0.7=most delivered | 0.4=partially delivered | 0.1=not delivered
- Note: Form-based access still counts as delivered if service is accessible

**Bands:** 0.8-1.0=excellent | 0.6-0.8=good | 0.4-0.6=moderate | 0.2-0.4=weak | 0.0-0.2=poor

JSON only: {"topic_match":0.0,"brand_match":0.0,"promise_match":0.0,"final_score":0.0,"band":"","reason":""}
**Reason:** Max 125 characters explaining the score.
Formula: 0.30*T + 0.20*B + 0.50*P`, adText, pageText)
}

func keywordToPagePrompt(keyword, pageText string) string {
	return fmt.Sprintf(`Score page relevance to keyword. Judge meaning, not keyword stuffing. Penalize deceptive/thin content.

KEYWORD: %q
PAGE: %q

**Intent:** TRANSACTIONAL (buy/hire) | NAVIGATIONAL (brand+site) | INFORMATIONAL (how/what) | COMPARISON (best/vs)

**Penalties:**
- NAV mismatch: nav keyword, wrong site -> both<=0.2
- Brand mismatch: brand keyword, different brand -> both<=0.4
- Thin content: SEO filler/arbitrage -> utility_match<=0.3

**Scores (0.0-1.0):**
TOPIC_MATCH (40%%): Page covers topic? | 1.0=exact focus | 0.7=close | 0.4=mentioned | 0.1=no
UTILITY_MATCH (60%%): Enables user goal?
- TRANS: Product+action? 1.0=yes | 0.3=no
- NAV: Correct destination? 1.0=yes | 0.1=no
- INFO: Teaches topic? 1.0=yes | 0.4=vague
- COMP: Comparison data? 1.0=yes | 0.4=single

Ask: Can user complete their task?

**Bands:** 0.8-1.0=excellent | 0.6-0.8=good | 0.4-0.6=moderate | 0.2-0.4=weak | 0.0-0.2=poor

JSON only: {"intent":"","topic_match":0.0,"utility_match":0.0,"final_score":0.0,"band":"","reason":""}
**Reason:** Max 125 characters explaining the score.
Formula: 0.40*T + 0.60*U`, keyword, pageText)
}
