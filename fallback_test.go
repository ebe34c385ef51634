package resilience_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	resilience "github.com/Tomefy5/jurachain-sub000"
)

var _ = Describe("FallbackChain", func() {
	var (
		ctx        context.Context
		classifier *resilience.Classifier
		cause      *resilience.ClassifiedError
	)

	BeforeEach(func() {
		ctx = context.Background()
		classifier = resilience.NewClassifier()
		cause = classifier.NewError(errors.New("service unavailable"), resilience.LanguageFrench, "mistral", "generate")
	})

	It("returns the original error untouched when no fallbacks are configured", func() {
		chain := resilience.NewFallbackChain(nil, "", quietLogger)

		_, err := chain.Run(ctx, cause)
		Expect(err).To(BeIdenticalTo(cause))
		Expect(cause.FallbackAttempted).To(BeFalse())
	})

	It("uses the first successful fallback and skips the rest", func() {
		var calls []int
		chain := resilience.NewFallbackChain([]resilience.Fallback{
			func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				calls = append(calls, 0)
				return nil, errors.New("cache miss")
			},
			func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				calls = append(calls, 1)
				return "template-result", nil
			},
			func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				calls = append(calls, 2)
				return "never", nil
			},
		}, "", quietLogger)

		result, err := chain.Run(ctx, cause)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal("template-result"))
		Expect(calls).To(Equal([]int{0, 1}))
		Expect(cause.FallbackAttempted).To(BeTrue())
	})

	It("decorates the original error when every fallback fails", func() {
		chain := resilience.NewFallbackChain([]resilience.Fallback{
			func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				return nil, errors.New("queue full")
			},
		}, "Mode dégradé : votre document sera signé dès le retour du réseau.", quietLogger)

		_, err := chain.Run(ctx, cause)

		var classified *resilience.ClassifiedError
		Expect(errors.As(err, &classified)).To(BeTrue())
		Expect(classified.CorrelationID).To(Equal(cause.CorrelationID))
		Expect(classified.FallbackAttempted).To(BeTrue())
		Expect(classified.FallbackMessage).To(ContainSubstring("Mode dégradé"))
	})

	It("hands the classified cause to each fallback", func() {
		var seen *resilience.ClassifiedError
		chain := resilience.NewFallbackChain([]resilience.Fallback{
			func(ctx context.Context, cause *resilience.ClassifiedError) (any, error) {
				seen = cause
				return "ok", nil
			},
		}, "", quietLogger)

		_, err := chain.Run(ctx, cause)
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(BeIdenticalTo(cause))
	})
})

var _ = Describe("OperationContext", func() {
	It("returns nil when nothing was attached", func() {
		Expect(resilience.OperationContext(context.Background())).To(BeNil())
	})
})
