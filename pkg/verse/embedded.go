package verse

import (
	"github.com/verseforge/verseforge/pkg/types"
)

// embedded is the compiled-in verse set. It keeps the service useful with
// an empty database and serves as the fallback when the metadata store is
// unreachable. Verses created out-of-band in the store take part in the
// daily rotation alongside these.
var embedded = []types.Verse{
	{Reference: "John 3:16", Book: "John", Chapter: 3, Verse: 16, Translation: "KJV", Themes: []string{"love", "hope"},
		Text: "For God so loved the world, that he gave his only begotten Son, that whosoever believeth in him should not perish, but have everlasting life."},
	{Reference: "Psalm 23:1", Book: "Psalm", Chapter: 23, Verse: 1, Translation: "KJV", Themes: []string{"peace", "strength"},
		Text: "The Lord is my shepherd; I shall not want."},
	{Reference: "Philippians 4:13", Book: "Philippians", Chapter: 4, Verse: 13, Translation: "KJV", Themes: []string{"strength"},
		Text: "I can do all things through Christ which strengtheneth me."},
	{Reference: "Jeremiah 29:11", Book: "Jeremiah", Chapter: 29, Verse: 11, Translation: "KJV", Themes: []string{"hope"},
		Text: "For I know the thoughts that I think toward you, saith the Lord, thoughts of peace, and not of evil, to give you an expected end."},
	{Reference: "Romans 8:28", Book: "Romans", Chapter: 8, Verse: 28, Translation: "KJV", Themes: []string{"love", "hope"},
		Text: "And we know that all things work together for good to them that love God, to them who are the called according to his purpose."},
	{Reference: "Proverbs 3:5", Book: "Proverbs", Chapter: 3, Verse: 5, Translation: "KJV", Themes: []string{"wisdom"},
		Text: "Trust in the Lord with all thine heart; and lean not unto thine own understanding."},
	{Reference: "Isaiah 40:31", Book: "Isaiah", Chapter: 40, Verse: 31, Translation: "KJV", Themes: []string{"strength", "hope"},
		Text: "But they that wait upon the Lord shall renew their strength; they shall mount up with wings as eagles; they shall run, and not be weary; and they shall walk, and not faint."},
	{Reference: "Matthew 5:14", Book: "Matthew", Chapter: 5, Verse: 14, Translation: "KJV", Themes: []string{"light"},
		Text: "Ye are the light of the world. A city that is set on an hill cannot be hid."},
	{Reference: "Psalm 46:10", Book: "Psalm", Chapter: 46, Verse: 10, Translation: "KJV", Themes: []string{"peace"},
		Text: "Be still, and know that I am God: I will be exalted among the heathen, I will be exalted in the earth."},
	{Reference: "Joshua 1:9", Book: "Joshua", Chapter: 1, Verse: 9, Translation: "KJV", Themes: []string{"strength"},
		Text: "Have not I commanded thee? Be strong and of a good courage; be not afraid, neither be thou dismayed: for the Lord thy God is with thee whithersoever thou goest."},
	{Reference: "Psalm 119:105", Book: "Psalm", Chapter: 119, Verse: 105, Translation: "KJV", Themes: []string{"light", "wisdom"},
		Text: "Thy word is a lamp unto my feet, and a light unto my path."},
	{Reference: "1 Corinthians 13:4", Book: "1 Corinthians", Chapter: 13, Verse: 4, Translation: "KJV", Themes: []string{"love"},
		Text: "Charity suffereth long, and is kind; charity envieth not; charity vaunteth not itself, is not puffed up."},
	{Reference: "Galatians 5:22", Book: "Galatians", Chapter: 5, Verse: 22, Translation: "KJV", Themes: []string{"joy", "love", "peace"},
		Text: "But the fruit of the Spirit is love, joy, peace, longsuffering, gentleness, goodness, faith."},
	{Reference: "Psalm 118:24", Book: "Psalm", Chapter: 118, Verse: 24, Translation: "KJV", Themes: []string{"joy"},
		Text: "This is the day which the Lord hath made; we will rejoice and be glad in it."},
	{Reference: "Matthew 11:28", Book: "Matthew", Chapter: 11, Verse: 28, Translation: "KJV", Themes: []string{"peace"},
		Text: "Come unto me, all ye that labour and are heavy laden, and I will give you rest."},
	{Reference: "Psalm 121:1", Book: "Psalm", Chapter: 121, Verse: 1, Translation: "KJV", Themes: []string{"nature", "strength"},
		Text: "I will lift up mine eyes unto the hills, from whence cometh my help."},
	{Reference: "Genesis 1:1", Book: "Genesis", Chapter: 1, Verse: 1, Translation: "KJV", Themes: []string{"nature"},
		Text: "In the beginning God created the heaven and the earth."},
	{Reference: "James 1:5", Book: "James", Chapter: 1, Verse: 5, Translation: "KJV", Themes: []string{"wisdom"},
		Text: "If any of you lack wisdom, let him ask of God, that giveth to all men liberally, and upbraideth not; and it shall be given him."},
	{Reference: "Romans 15:13", Book: "Romans", Chapter: 15, Verse: 13, Translation: "KJV", Themes: []string{"hope", "joy", "peace"},
		Text: "Now the God of hope fill you with all joy and peace in believing, that ye may abound in hope, through the power of the Holy Ghost."},
	{Reference: "Psalm 27:1", Book: "Psalm", Chapter: 27, Verse: 1, Translation: "KJV", Themes: []string{"light", "strength"},
		Text: "The Lord is my light and my salvation; whom shall I fear? the Lord is the strength of my life; of whom shall I be afraid?"},
	{Reference: "1 John 4:19", Book: "1 John", Chapter: 4, Verse: 19, Translation: "KJV", Themes: []string{"love"},
		Text: "We love him, because he first loved us."},
	{Reference: "Zephaniah 3:17", Book: "Zephaniah", Chapter: 3, Verse: 17, Translation: "KJV", Themes: []string{"joy", "love"},
		Text: "The Lord thy God in the midst of thee is mighty; he will save, he will rejoice over thee with joy; he will rest in his love, he will joy over thee with singing."},
	{Reference: "Psalm 19:1", Book: "Psalm", Chapter: 19, Verse: 1, Translation: "KJV", Themes: []string{"nature", "light"},
		Text: "The heavens declare the glory of God; and the firmament sheweth his handywork."},
	{Reference: "Hebrews 11:1", Book: "Hebrews", Chapter: 11, Verse: 1, Translation: "KJV", Themes: []string{"hope"},
		Text: "Now faith is the substance of things hoped for, the evidence of things not seen."},
	{Reference: "Micah 6:8", Book: "Micah", Chapter: 6, Verse: 8, Translation: "KJV", Themes: []string{"wisdom", "love"},
		Text: "He hath shewed thee, O man, what is good; and what doth the Lord require of thee, but to do justly, and to love mercy, and to walk humbly with thy God?"},
}
